package bridge

import "github.com/pithecene-io/jsbridge/types"

// WebView is the embedded script context the bridge drives.
// Every method is called on the controlling goroutine.
type WebView interface {
	// EvaluateScript runs script in the current page.
	EvaluateScript(script string) error
	// LoadURL navigates to url, sending headers with the request when non-nil.
	LoadURL(url string, headers map[string]string)
	// AddJavascriptInterface exposes methods to the page as name.method(arg).
	AddJavascriptInterface(name string, methods map[string]func(arg string))
	// SetProgressListener registers the load-progress callback (0-100).
	SetProgressListener(fn func(progress int))
}

// Scheduler runs work on the controlling goroutine. looper.Looper implements it.
type Scheduler interface {
	// Submit runs task inline on the controlling goroutine, or posts it.
	Submit(task func()) bool
	// Post always enqueues task.
	Post(task func()) bool
}

// Recorder observes every envelope that crosses the bridge.
// transcript.Log implements it.
type Recorder interface {
	Record(dir types.Direction, env *types.Envelope)
}
