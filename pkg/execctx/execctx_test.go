package execctx

import (
	"testing"

	"github.com/rpacore/engine/pkg/store"
)

func newTestContext() *Context {
	return New(store.New(), nil, nil)
}

func TestResolveDelegatesToStore(t *testing.T) {
	c := newTestContext()
	c.SetVariable("name", "Ada")
	got, err := c.Resolve("hello ${name}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello Ada" {
		t.Fatalf("got %q", got)
	}
}

func TestLoopStackPushPopDepth(t *testing.T) {
	c := newTestContext()
	if c.LoopDepth() != 0 {
		t.Fatalf("expected empty loop stack initially")
	}
	c.PushLoop(&LoopFrame{HeaderNodeID: "h1", Limit: 3})
	if c.LoopDepth() != 1 {
		t.Fatalf("expected depth 1 after push")
	}
	if c.CurrentLoop().HeaderNodeID != "h1" {
		t.Fatalf("unexpected current loop frame")
	}
	c.PopLoop()
	if c.LoopDepth() != 0 {
		t.Fatalf("expected depth 0 after pop")
	}
	if c.CurrentLoop() != nil {
		t.Fatalf("expected nil current loop after pop")
	}
}

func TestSubflowStackPushPop(t *testing.T) {
	c := newTestContext()
	if _, ok := c.PopSubflow(); ok {
		t.Fatalf("expected no subflow frame on an empty stack")
	}
	c.PushSubflow(&SubflowFrame{ReturnNodeID: "n42"})
	frame, ok := c.PopSubflow()
	if !ok || frame.ReturnNodeID != "n42" {
		t.Fatalf("got (%+v, %v), want ReturnNodeID=n42", frame, ok)
	}
}

func TestShouldBreakContinueAreOneShot(t *testing.T) {
	c := newTestContext()
	if c.TakeShouldBreak() {
		t.Fatalf("expected should_break to start false")
	}
	c.SetShouldBreak()
	if !c.TakeShouldBreak() {
		t.Fatalf("expected should_break to be true after SetShouldBreak")
	}
	if c.TakeShouldBreak() {
		t.Fatalf("expected should_break to clear after being taken once")
	}

	c.SetShouldContinue()
	if !c.TakeShouldContinue() || c.TakeShouldContinue() {
		t.Fatalf("should_continue must also be one-shot")
	}
}

func TestDescendAndAscendIframe(t *testing.T) {
	c := newTestContext()
	c.PageHandle = "main-page"
	c.DescendIframe(IframeLocator{Kind: "name", Value: "payment-frame"}, "frame-handle")

	if !c.Iframe.InIframe {
		t.Fatalf("expected InIframe=true after descend")
	}
	if c.Iframe.MainPage != "main-page" {
		t.Fatalf("expected MainPage saved as the prior page handle")
	}
	if c.Iframe.CurrentFrame != "frame-handle" {
		t.Fatalf("expected CurrentFrame set to the new frame handle")
	}

	c.AscendIframe()
	if c.Iframe.InIframe {
		t.Fatalf("expected InIframe=false after ascend")
	}
}

func TestCancelIsMonotonic(t *testing.T) {
	c := newTestContext()
	if c.Cancelled() {
		t.Fatalf("expected not cancelled initially")
	}
	c.Cancel()
	if !c.Cancelled() {
		t.Fatalf("expected cancelled after Cancel()")
	}
}
