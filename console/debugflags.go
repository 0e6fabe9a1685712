package console

// DeviceDebugFlags collects the command-line switches that drive device
// creation diagnostics. The flags follow the conventional names; backends
// read whichever subset applies to them.
type DeviceDebugFlags struct {
	// DebugLayer enables the graphics API debug/validation layer.
	DebugLayer bool

	// DRED enables device-removed extended diagnostics.
	DRED bool

	// GPUValidation enables GPU-based validation (slow).
	GPUValidation bool

	// PIX attaches the frame-capture runtime.
	PIX bool

	// WARP selects the software adapter.
	WARP bool
}

// DebugFlagsFromCommandLine reads the standard device flags from the
// process-wide parameter store.
func DebugFlagsFromCommandLine() DeviceDebugFlags {
	return DeviceDebugFlags{
		DebugLayer:    GetBool("d3ddebug"),
		DRED:          GetBool("dred"),
		GPUValidation: GetBool("gpuvalidation"),
		PIX:           GetBool("pix"),
		WARP:          GetBool("warp"),
	}
}
