// Package automation is the session controller for remote-control targets.
//
// A Backend adapts one target kind (Android devices through the device bridge,
// browser contexts through a browser driver) to a uniform lifecycle:
//
//  1. Discover: enumerate targets into an immutable Discovery snapshot
//  2. Select: pick exactly one target, never guessing between several
//  3. Bind: acquire an exclusive Handle, producing a bound Session
//  4. Dispatch: run named action protocols, one at a time per session
//  5. Release: close the handle, exactly once, on every exit path
//
// Dispatch always yields an ActionResult. Failures carry an ErrorKind rather
// than escaping as errors; only lifecycle failures (discovery, selection,
// binding) are returned as errors, and those leave nothing bound.
//
// # Example Usage
//
//	controller := automation.NewController(backend, automation.WithObserver(observer))
//	result, err := controller.Run(ctx, "", automation.NewActionRequest("getInfo"))
//	if err != nil {
//	    // no target, ambiguous selection, or bind failure
//	}
//	if !result.Success {
//	    // result.ErrorKind, result.Step, result.Error
//	}
package automation
