package fits

// IsFitsPlus reports whether buf starts with the primary header of a fits-plus file: a
// byte array of VOTable text with VOTMETA = T as the card after NAXIS1.
func IsFitsPlus(buf []byte) bool {
	colfits, votmeta := markers(buf)
	return votmeta && !colfits
}

// IsColfitsPlus reports whether buf starts with a colfits-plus primary header, where
// COLFITS = T follows NAXIS1 and VOTMETA = T follows COLFITS.
func IsColfitsPlus(buf []byte) bool {
	colfits, votmeta := markers(buf)
	return votmeta && colfits
}

func markers(buf []byte) (colfits, votmeta bool) {
	card := func(i int) (Card, bool) {
		lo := i * CardSize
		if lo+CardSize > len(buf) {
			return Card{}, false
		}
		c, err := ParseCard(buf[lo : lo+CardSize])
		return c, err == nil
	}
	is := func(i int, key, value string) bool {
		c, ok := card(i)
		return ok && c.Key == key && (value == "" || c.Value == value)
	}

	if !is(0, "SIMPLE", "T") || !is(1, "BITPIX", "8") || !is(2, "NAXIS", "1") || !is(3, "NAXIS1", "") {
		return false, false
	}
	if is(4, "VOTMETA", "T") {
		return false, true
	}
	if is(4, "COLFITS", "T") && is(5, "VOTMETA", "T") {
		return true, true
	}
	return false, false
}
