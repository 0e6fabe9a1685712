package console

import "testing"

func TestParseCommandLine(t *testing.T) {
	ParseCommandLine(`-d3ddebug -warp -tonemapper=2 -samples=16 "-screenshotDir=C:\out put\"`)

	if !GetBool("d3ddebug") {
		t.Error("GetBool(d3ddebug) = false, want true")
	}
	if !GetBool("warp") {
		t.Error("GetBool(warp) = false, want true")
	}
	if GetBool("dred") {
		t.Error("GetBool(dred) = true, want false")
	}
	if got := GetInt("tonemapper", 0); got != 2 {
		t.Errorf("GetInt(tonemapper) = %d, want 2", got)
	}
	if got := GetInt("samples", 0); got != 16 {
		t.Errorf("GetInt(samples) = %d, want 16", got)
	}
	if got, ok := Parameter("screenshotDir"); !ok || got != `C:\out put\` {
		t.Errorf("Parameter(screenshotDir) = %q, %v", got, ok)
	}
	if got, ok := Parameter("d3ddebug"); !ok || got != "1" {
		t.Errorf("flag without value = %q, want \"1\"", got)
	}
}

func TestParseCommandLineQuotedValue(t *testing.T) {
	ParseCommandLine(`-dir="a b c" -n=3`)
	if got, _ := Parameter("dir"); got != "a b c" {
		t.Errorf("quoted value = %q, want \"a b c\"", got)
	}
	if got := GetInt("n", 0); got != 3 {
		t.Errorf("GetInt(n) = %d, want 3", got)
	}
}

func TestGetIntRejectsNonDigits(t *testing.T) {
	ParseCommandLine(`-w=abc -x=12a -y=-5`)
	if got := GetInt("w", 7); got != 7 {
		t.Errorf("GetInt(w) = %d, want default 7", got)
	}
	if got := GetInt("x", 7); got != 7 {
		t.Errorf("GetInt(x) = %d, want default 7", got)
	}
	if got := GetInt("y", 7); got != 7 {
		t.Errorf("GetInt(y) = %d, want default 7 for negative", got)
	}
	if got := GetInt("missing", 9); got != 9 {
		t.Errorf("GetInt(missing) = %d, want default 9", got)
	}
}

func TestParseCommandLineReplacesPrevious(t *testing.T) {
	ParseCommandLine("-a")
	ParseCommandLine("-b")
	if GetBool("a") {
		t.Error("old parameters survived reparse")
	}
	if !GetBool("b") {
		t.Error("new parameters missing")
	}
}

func TestDebugFlagsFromCommandLine(t *testing.T) {
	ParseCommandLine("-d3ddebug -warp")
	flags := DebugFlagsFromCommandLine()
	if !flags.DebugLayer || !flags.WARP {
		t.Errorf("flags = %+v, want debug layer and warp set", flags)
	}
	if flags.DRED || flags.GPUValidation || flags.PIX {
		t.Errorf("flags = %+v, want others clear", flags)
	}
}
