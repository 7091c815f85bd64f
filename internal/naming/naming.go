// Package naming derives deterministic artifact file names and URL fingerprints.
//
// Artifact names are a pure function of the member list, the application version
// and the merge flags, so a cached artifact can be found again on later requests
// without keeping any index next to the cache directory.
package naming

import (
	"hash/crc32"
	"strconv"
	"strings"
)

// Kind is the type of artifact being named.
type Kind string

const (
	KindJS  Kind = "js"
	KindCSS Kind = "css"
)

const (
	prefix       = "nls"
	headerOpen   = "/** Content:\r\n"
	headerClose  = "*/\r\n"
	lineEnding   = "\r\n"
	fingerprintM = 0x3FFFFFFF
)

// Flags are the merge options that alter artifact bytes and therefore its name.
type Flags struct {
	Minify            bool
	DownloadResources bool // only meaningful for KindCSS
}

// Descriptor accumulates the ordered member list of an artifact. Its text is both
// hashed into the name and written as the leading comment of the artifact.
type Descriptor struct {
	b       strings.Builder
	members int
}

func NewDescriptor() *Descriptor {
	d := &Descriptor{}
	d.b.WriteString(headerOpen)
	return d
}

// Add appends a member URL.
func (d *Descriptor) Add(url string) {
	d.b.WriteString(url)
	d.b.WriteString(lineEnding)
	d.members++
}

func (d *Descriptor) Len() int {
	return d.members
}

// String returns the closed comment block.
func (d *Descriptor) String() string {
	return d.b.String() + headerClose
}

// Name returns the artifact filename for the descriptor.
func (d *Descriptor) Name(version string, kind Kind, flags Flags) string {
	return Name(d.String(), version, kind, flags)
}

// Name returns `nls<crc32>[.dcr][.min].<ext>` for a content descriptor.
func Name(descriptor, version string, kind Kind, flags Flags) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(strconv.FormatUint(uint64(crc32.ChecksumIEEE([]byte(descriptor+version))), 10))
	if kind == KindCSS && flags.DownloadResources {
		b.WriteString(".dcr")
	}
	if flags.Minify {
		b.WriteString(".min")
	}
	b.WriteByte('.')
	b.WriteString(string(kind))
	return b.String()
}

// Fingerprint hashes a URL the same way the browser-side loader does, so the
// values it reports back in the client manifest can be compared directly.
func Fingerprint(s string) uint32 {
	var h int64
	for i := 0; i < len(s); i++ {
		h = (h << 5) - h + int64(s[i])
		h &= fingerprintM
	}
	return uint32(h)
}
