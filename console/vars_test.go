package console

import "testing"

func TestRegisterAndGet(t *testing.T) {
	reset()

	b := Register("test.Bool", true)
	n := Register("test.Int", 4)
	f := Register("test.Float", float32(1.5))

	if !b.Get() {
		t.Error("bool default lost")
	}
	if n.Get() != 4 {
		t.Errorf("int default = %d, want 4", n.Get())
	}
	if f.Get() != 1.5 {
		t.Errorf("float default = %v, want 1.5", f.Get())
	}

	n.Set(7)
	if n.Get() != 7 {
		t.Errorf("after Set, Get = %d, want 7", n.Get())
	}

	if _, ok := Find("test.Int"); !ok {
		t.Error("Find failed for registered variable")
	}
	if _, ok := Find("test.Nope"); ok {
		t.Error("Find succeeded for unknown variable")
	}
}

func TestClampPinsValue(t *testing.T) {
	reset()

	v := Register("test.Clamped", true)
	v.Clamp(func(bool) bool { return false })

	if v.Get() {
		t.Error("clamp did not re-apply to current value")
	}
	v.Set(true)
	if v.Get() {
		t.Error("clamp did not filter a later write")
	}
}

func TestDuplicatePanics(t *testing.T) {
	reset()
	Register("test.Dup", 1)
	defer func() {
		if recover() == nil {
			t.Error("duplicate registration did not panic")
		}
	}()
	Register("test.Dup", 2)
}

func TestCommands(t *testing.T) {
	reset()

	ran := false
	RegisterCommand("test.Run", func() { ran = true })

	if !Invoke("test.Run") {
		t.Fatal("Invoke returned false for registered command")
	}
	if !ran {
		t.Error("command did not run")
	}
	if Invoke("test.Missing") {
		t.Error("Invoke returned true for unknown command")
	}
}
