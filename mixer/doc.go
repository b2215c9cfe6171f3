// Package mixer exposes the host audio mixer as a surface of control lines
// that can be enumerated, queried and adjusted by the live audio plugin.
//
// A Surface owns one open mixer device. Controls are created from
// Descriptors and populate their Details on construction. Details are a
// tagged variant: the Kind selects which fields carry data.
//
//	Kind         │ Values (one per channel)   │ Items
//	─────────────┼────────────────────────────┼──────────────────
//	KindBoolean  │ 0 or 1                     │ -
//	KindInteger  │ Min..Max                   │ -
//	KindList     │ selected item index        │ item text
//
// # List/text controls
//
// Detail retrieval for list controls is a placeholder by default: the query
// is issued but leaves the details unpopulated (zeroed values, no items).
// Set Options.ListText to perform the real query through the backend.
//
// # Backends
//
//   - SoftwareBackend: an in-process mixer used headless and in tests.
//   - AmixerBackend: ALSA controls through the amixer command line tool.
//
// # Thread Safety
//
// Surface serializes all calls with an internal mutex. Control values are
// owned by the Surface that created them; callers that hold a *Control
// directly must not share it between goroutines.
package mixer
