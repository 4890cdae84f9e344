package restable

// Publicize flips the SPEC_PUBLIC bit on a set of TypeSpec flags regions
// in-place over the original ARSC bytes, grounded on apktool's
// AndrolibResources.publicizeResources byte patch (spec.md §4.8): for
// each flags entry the patch sets bit 30 of the little-endian uint32,
// which is byte offset+3's 0x40 bit.
//
// regions is the set of (offset, count) flags arrays recorded during
// Decode (DecodeResult.FlagsOffsets); Publicize does not re-parse the
// ARSC chunk structure, it only patches bytes already located by the
// decoder. The patch is idempotent: re-applying it to already-public
// entries is a no-op.
func Publicize(data []byte, regions []FlagsOffset) (int, error) {
	patched := 0
	for _, region := range regions {
		for i := 0; i < region.Count; i++ {
			off := region.Offset + int64(i)*4
			byteOff := off + 3
			if byteOff < 0 || byteOff >= int64(len(data)) {
				return patched, newDecodeError(KindTruncatedChunk, off, "publicize: flags entry out of range", nil)
			}
			if data[byteOff]&0x40 != 0 {
				continue // already public
			}
			data[byteOff] |= 0x40
			patched++
		}
	}
	return patched, nil
}

// IsPublicized reports whether every flags entry named by regions already
// carries the SPEC_PUBLIC bit, used by tests to assert Publicize's
// idempotence (spec.md §8).
func IsPublicized(data []byte, regions []FlagsOffset) bool {
	for _, region := range regions {
		for i := 0; i < region.Count; i++ {
			byteOff := region.Offset + int64(i)*4 + 3
			if byteOff < 0 || byteOff >= int64(len(data)) {
				return false
			}
			if data[byteOff]&0x40 == 0 {
				return false
			}
		}
	}
	return true
}
