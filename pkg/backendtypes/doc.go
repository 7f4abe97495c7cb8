// Package backendtypes defines the JSON envelope and payloads of the drivepool
// HTTP API, kept apart from the handlers so clients can import them alone.
//
//	import "github.com/cecil-the-coder/drivepool/pkg/backendtypes"
//
//	var resp backendtypes.APIResponse
//	json.NewDecoder(r.Body).Decode(&resp)
package backendtypes
