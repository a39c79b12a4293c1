// Package compress implements the compression policy (which files get
// shrunk, and how much) and the worker that resizes and re-encodes image
// bytes before upload.
package compress

import "strings"

// Profile is the tuple of settings the worker applies to one image.
type Profile struct {
	Quality      int
	MaxDimension int
	OutputFormat string
}

// Policy maps a file's size and type to a compression profile. It is pure
// and deterministic: the same (size, type) pair always yields the same
// decision, and no I/O is performed.
//
// Band boundaries and per-band profiles are product-tuning values supplied
// from configuration; DefaultPolicy carries the current defaults.
type Policy struct {
	SkipBelowBytes int64
	LightMaxBytes  int64
	MediumMaxBytes int64

	Light  Profile
	Medium Profile
	Heavy  Profile
}

// DefaultPolicy returns the product default bands: files below 400 KiB are
// uploaded as-is, then progressively stronger profiles as size grows.
func DefaultPolicy() Policy {
	return Policy{
		SkipBelowBytes: 400 << 10,
		LightMaxBytes:  2 << 20,
		MediumMaxBytes: 8 << 20,
		Light:          Profile{Quality: 85, MaxDimension: 2048, OutputFormat: "jpeg"},
		Medium:         Profile{Quality: 75, MaxDimension: 1600, OutputFormat: "jpeg"},
		Heavy:          Profile{Quality: 60, MaxDimension: 1280, OutputFormat: "jpeg"},
	}
}

// rawSuffixes lists camera RAW formats local decoding cannot handle
// reliably. Such files pass through untouched regardless of size and rely
// on the remote side to convert them.
var rawSuffixes = []string{"cr2", "cr3", "nef", "arw", "raf", "orf", "rw2", "dng"}

// isRaw reports whether mimeOrExt names a camera RAW format. It accepts a
// bare extension ("cr2"), a dotted one (".CR2") or a MIME type
// ("image/x-canon-cr2").
func isRaw(mimeOrExt string) bool {
	s := strings.ToLower(strings.TrimSpace(mimeOrExt))
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimPrefix(s, ".")
	for _, suffix := range rawSuffixes {
		if s == suffix || strings.HasSuffix(s, "-"+suffix) {
			return true
		}
	}
	return false
}

// Decide returns the profile for the given file. The second return value
// is false when the file must be uploaded unmodified: either it is already
// small enough, or it is a RAW format the worker cannot decode.
func (p Policy) Decide(sizeBytes int64, mimeOrExt string) (Profile, bool) {
	if isRaw(mimeOrExt) {
		return Profile{}, false
	}
	if sizeBytes < p.SkipBelowBytes {
		return Profile{}, false
	}
	switch {
	case sizeBytes < p.LightMaxBytes:
		return p.Light, true
	case sizeBytes < p.MediumMaxBytes:
		return p.Medium, true
	default:
		return p.Heavy, true
	}
}
