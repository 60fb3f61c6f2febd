// Package httpserver exposes the driver's status over HTTP: health,
// publication listing and counter snapshots as JSON. Read-only; all
// control-plane mutations go through the driver API.
//
// Example:
//
//	drv, _ := driver.Open(driver.Options{Dir: "./data"})
//	s := httpserver.New(drv)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
