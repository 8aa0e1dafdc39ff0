package net

import (
	"regexp"
	"strings"
	"time"

	pkgRand "github.com/plgd-dev/coap-engine/pkg/rand"
)

var weakRng = pkgRand.NewRand(time.Now().UnixNano())

const (
	// 71 allowed letters in URL path segment
	urlLetterBytes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ-._~!$&'()*+,;=:@"

	urlLetterIdxBits = 7                       // we need 7 bits to represent a letter index (0..70)
	urlLetterIdxMask = 1<<urlLetterIdxBits - 1 // All 1-bits, as many as letterIdxBits
)

// RandomPath generates a random path of length n, starting with '/', where
// a '/' occurs at least every maxSegmentLen characters.
func RandomPath(n, maxSegmentLen int) string {
	b := make([]byte, n)
	if n > 0 {
		b[0] = '/'
	}
	for i := 1; i < n; {
		if idx := int(weakRng.Int63() & urlLetterIdxMask); idx < len(urlLetterBytes) {
			b[i] = urlLetterBytes[idx]
			i++
		}
	}
	index := 0
	for n-index >= maxSegmentLen {
		index += int(weakRng.Int63n(int64(maxSegmentLen))) + 1
		if index >= n {
			index = n - 1
		}
		b[index] = '/'
	}
	return string(b)
}

// NormalizePath replaces repeated '/' characters with a single one and
// trims the slashes around the path, the form Uri-Path options give back.
func NormalizePath(s string) string {
	space := regexp.MustCompile("/+")
	return strings.Trim(space.ReplaceAllString(s, "/"), "/")
}
