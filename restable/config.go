package restable

import (
	"fmt"
	"strconv"
	"strings"
)

// Config field block sizes, in the order AOSP's ResTable_config has grown
// over SDK versions. Only as many trailing blocks are read as the chunk's
// own declared `size` permits (spec.md §4.3); anything beyond the last
// block this decoder understands is preserved verbatim as rawTail so
// equality and future re-encoding stay bit-exact.
const (
	configSizeBase      = 28 // size..minorVersion
	configSizeScreenCfg = 32 // + screenLayout, uiMode, smallestScreenWidthDp
	configSizeScreenDp  = 36 // + screenWidthDp, screenHeightDp
	configSizeLocale    = 48 // + localeScript[4], localeVariant[8]
	configSizeScreenCfg2 = 52 // + screenLayout2, colorMode, pad
	configSizeGrammar   = 56 // + grammaticalInflection, pad[3]
)

// ScreenLayout bits (screenLayout field).
const (
	maskScreenSize   = 0x0f
	maskScreenLong   = 0x30
	maskLayoutDir    = 0xC0
	layoutDirLTR     = 0x40
	layoutDirRTL     = 0x80
)

// UIMode bits.
const (
	maskUIModeType  = 0x0f
	maskUIModeNight = 0x30
)

// ConfigFlags is the full Android resource qualifier tuple (spec.md §3,
// §4.3). Equality is bit-for-bit over every parsed field, including the
// preserved raw tail of fields newer than this decoder understands.
type ConfigFlags struct {
	Size uint32

	Mcc uint16
	Mnc uint16

	Language [2]byte
	Country  [2]byte

	Orientation uint8
	Touchscreen uint8
	Density     uint16

	Keyboard   uint8
	Navigation uint8
	InputFlags uint8

	ScreenWidth  uint16
	ScreenHeight uint16

	SDKVersion   uint16
	MinorVersion uint16

	ScreenLayout          uint8
	UIMode                uint8
	SmallestScreenWidthDp uint16

	ScreenWidthDp  uint16
	ScreenHeightDp uint16

	LocaleScript  [4]byte
	LocaleVariant [8]byte

	ScreenLayout2 uint8
	ColorMode     uint8

	GrammaticalInflection uint8

	// rawTail holds any bytes declared by Size but past every field this
	// decoder parses, preserved verbatim for round-trip equality.
	rawTail []byte
}

// IsDefault reports whether this is the unqualified/default configuration.
func (c ConfigFlags) IsDefault() bool {
	var zero ConfigFlags
	zero.Size = c.Size
	return c.Equal(zero)
}

// Equal reports bit-for-bit equality over every parsed field and the
// preserved tail (spec.md §3, invariant 5's round-trip relies on this).
// ConfigFlags embeds a []byte (rawTail), so it is not a comparable struct
// type and can't use == directly; Key derives a comparable map key from
// the same fields for use as a ResSpec.configured index.
func (c ConfigFlags) Equal(o ConfigFlags) bool {
	return c.Key() == o.Key()
}

// configKey is the comparable projection of ConfigFlags used as a map key
// (spec.md §3: "at most one Resource per distinct ConfigFlags key"). Size
// is deliberately excluded: it is the raw chunk-size prefix, not a parsed
// qualifier, so two configs that differ only because they were declared by
// chunks of different sizes (a legitimate cross-version occurrence) must
// still compare equal.
type configKey struct {
	mcc, mnc                          uint16
	language                          [2]byte
	country                           [2]byte
	orientation, touchscreen          uint8
	density                           uint16
	keyboard, navigation, inputFlags  uint8
	screenWidth, screenHeight         uint16
	sdkVersion, minorVersion          uint16
	screenLayout, uiMode              uint8
	smallestScreenWidthDp             uint16
	screenWidthDp, screenHeightDp     uint16
	localeScript                      [4]byte
	localeVariant                     [8]byte
	screenLayout2, colorMode          uint8
	grammaticalInflection             uint8
	rawTail                           string
}

// Key returns the comparable value used to index a ResSpec's per-config
// resource map; two ConfigFlags with Equal() == true produce the same Key.
func (c ConfigFlags) Key() configKey {
	return configKey{
		mcc: c.Mcc, mnc: c.Mnc,
		language: c.Language, country: c.Country,
		orientation: c.Orientation, touchscreen: c.Touchscreen, density: c.Density,
		keyboard: c.Keyboard, navigation: c.Navigation, inputFlags: c.InputFlags,
		screenWidth: c.ScreenWidth, screenHeight: c.ScreenHeight,
		sdkVersion: c.SDKVersion, minorVersion: c.MinorVersion,
		screenLayout: c.ScreenLayout, uiMode: c.UIMode,
		smallestScreenWidthDp: c.SmallestScreenWidthDp,
		screenWidthDp:         c.ScreenWidthDp, screenHeightDp: c.ScreenHeightDp,
		localeScript: c.LocaleScript, localeVariant: c.LocaleVariant,
		screenLayout2: c.ScreenLayout2, colorMode: c.ColorMode,
		grammaticalInflection: c.GrammaticalInflection,
		rawTail:               string(c.rawTail),
	}
}

// parseConfig reads a variable-length config block (spec.md §4.3). cur is
// positioned at the block's leading size prefix.
func parseConfig(cur *Cursor, chunkEnd int64, sess *Session) (ConfigFlags, error) {
	start := cur.Pos()
	size, err := cur.U32()
	if err != nil {
		return ConfigFlags{}, err
	}
	if int64(size) < 4 || start+int64(size) > chunkEnd {
		return ConfigFlags{}, newDecodeError(KindInvalidConfig, start, "config size exceeds containing chunk", nil)
	}

	block := NewCursor(cur.r, cur.Pos(), start+int64(size))
	cfg := ConfigFlags{Size: size}

	read := func(have uint32, fn func() error) error {
		if size < have {
			return nil
		}
		return fn()
	}

	if err := read(configSizeBase, func() (e error) {
		if cfg.Mcc, e = block.U16(); e != nil {
			return
		}
		if cfg.Mnc, e = block.U16(); e != nil {
			return
		}
		lang, e := block.Bytes(2)
		if e != nil {
			return e
		}
		copy(cfg.Language[:], lang)
		ctry, e := block.Bytes(2)
		if e != nil {
			return e
		}
		copy(cfg.Country[:], ctry)
		o, e := block.U8()
		if e != nil {
			return e
		}
		cfg.Orientation = o
		ts, e := block.U8()
		if e != nil {
			return e
		}
		cfg.Touchscreen = ts
		if cfg.Density, e = block.U16(); e != nil {
			return
		}
		if cfg.Keyboard, e = block.U8(); e != nil {
			return
		}
		if cfg.Navigation, e = block.U8(); e != nil {
			return
		}
		if cfg.InputFlags, e = block.U8(); e != nil {
			return
		}
		if _, e = block.U8(); e != nil { // inputPad0
			return
		}
		if cfg.ScreenWidth, e = block.U16(); e != nil {
			return
		}
		if cfg.ScreenHeight, e = block.U16(); e != nil {
			return
		}
		if cfg.SDKVersion, e = block.U16(); e != nil {
			return
		}
		cfg.MinorVersion, e = block.U16()
		return
	}); err != nil {
		return cfg, err
	}

	if err := read(configSizeScreenCfg, func() (e error) {
		if cfg.ScreenLayout, e = block.U8(); e != nil {
			return
		}
		if cfg.UIMode, e = block.U8(); e != nil {
			return
		}
		cfg.SmallestScreenWidthDp, e = block.U16()
		return
	}); err != nil {
		return cfg, err
	}

	if err := read(configSizeScreenDp, func() (e error) {
		if cfg.ScreenWidthDp, e = block.U16(); e != nil {
			return
		}
		cfg.ScreenHeightDp, e = block.U16()
		return
	}); err != nil {
		return cfg, err
	}

	if err := read(configSizeLocale, func() (e error) {
		script, e := block.Bytes(4)
		if e != nil {
			return e
		}
		copy(cfg.LocaleScript[:], script)
		variant, e := block.Bytes(8)
		if e != nil {
			return e
		}
		copy(cfg.LocaleVariant[:], variant)
		return nil
	}); err != nil {
		return cfg, err
	}

	if err := read(configSizeScreenCfg2, func() (e error) {
		if cfg.ScreenLayout2, e = block.U8(); e != nil {
			return
		}
		if cfg.ColorMode, e = block.U8(); e != nil {
			return
		}
		_, e = block.U16() // screenConfigPad2
		return
	}); err != nil {
		return cfg, err
	}

	if err := read(configSizeGrammar, func() (e error) {
		v, e := block.U8()
		if e != nil {
			return e
		}
		cfg.GrammaticalInflection = v
		_, e = block.Bytes(3)
		return
	}); err != nil {
		return cfg, err
	}

	if remaining := block.Remaining(); remaining > 0 {
		tail, err := block.Bytes(int(remaining))
		if err != nil {
			if !sess.lenient() {
				return cfg, err
			}
		} else {
			cfg.rawTail = tail
		}
	}

	return cfg, cur.Seek(start + int64(size))
}

// localeString renders the 2-letter language/region pair the way Android's
// resource qualifiers do: "fr", "fr-rFR". Packed 3-letter codes are not
// unpacked; their raw bytes are rendered as they are.
func (c ConfigFlags) localeString() string {
	if c.Language[0] == 0 {
		return ""
	}
	lang := strings.TrimRight(string(c.Language[:]), "\x00")
	if c.Country[0] == 0 {
		return lang
	}
	return fmt.Sprintf("%s-r%s", lang, strings.TrimRight(string(c.Country[:]), "\x00"))
}

// Canonical renders the config as the qualifier-string suffix used for a
// values-<qualifier> directory, e.g. "fr-rFR-v21". The default config
// renders as "" (bare "values" directory). ParseQualifier is its inverse
// for every qualifier Canonical can produce (spec.md invariant 5).
func (c ConfigFlags) Canonical() string {
	var parts []string

	if c.Mcc != 0 {
		parts = append(parts, fmt.Sprintf("mcc%03d", c.Mcc))
		if c.Mnc != 0 {
			parts = append(parts, fmt.Sprintf("mnc%d", c.Mnc))
		}
	}
	if loc := c.localeString(); loc != "" {
		parts = append(parts, loc)
	}
	if dir := c.ScreenLayout & maskLayoutDir; dir != 0 {
		if dir == layoutDirLTR {
			parts = append(parts, "ldltr")
		} else {
			parts = append(parts, "ldrtl")
		}
	}
	if c.SmallestScreenWidthDp != 0 {
		parts = append(parts, fmt.Sprintf("sw%ddp", c.SmallestScreenWidthDp))
	}
	if c.ScreenWidthDp != 0 {
		parts = append(parts, fmt.Sprintf("w%ddp", c.ScreenWidthDp))
	}
	if c.ScreenHeightDp != 0 {
		parts = append(parts, fmt.Sprintf("h%ddp", c.ScreenHeightDp))
	}
	if size := c.ScreenLayout & maskScreenSize; size != 0 {
		if name, ok := screenSizeNames[size]; ok {
			parts = append(parts, name)
		}
	}
	if long := c.ScreenLayout & maskScreenLong; long != 0 {
		if long == 0x20 {
			parts = append(parts, "long")
		} else {
			parts = append(parts, "notlong")
		}
	}
	if c.Orientation != 0 {
		if name, ok := orientationNames[c.Orientation]; ok {
			parts = append(parts, name)
		}
	}
	if night := c.UIMode & maskUIModeNight; night != 0 {
		if night == 0x20 {
			parts = append(parts, "night")
		} else {
			parts = append(parts, "notnight")
		}
	}
	if c.Density != 0 {
		if name, ok := densityNames[c.Density]; ok {
			parts = append(parts, name)
		} else {
			parts = append(parts, fmt.Sprintf("%ddpi", c.Density))
		}
	}
	if c.SDKVersion != 0 {
		parts = append(parts, fmt.Sprintf("v%d", c.SDKVersion))
	}

	return strings.Join(parts, "-")
}

var screenSizeNames = map[uint8]string{1: "small", 2: "normal", 3: "large", 4: "xlarge"}
var orientationNames = map[uint8]string{1: "port", 2: "land"}
var densityNames = map[uint16]string{120: "ldpi", 160: "mdpi", 213: "tvdpi", 240: "hdpi", 320: "xhdpi", 480: "xxhdpi", 640: "xxxhdpi", 0xFFFF: "nodpi", 0xFFFE: "anydpi"}

var (
	screenSizeByName   = invertU8(screenSizeNames)
	orientationByName  = invertU8(orientationNames)
	densityByName      = invertU16(densityNames)
)

func invertU8(m map[uint8]string) map[string]uint8 {
	out := make(map[string]uint8, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

func invertU16(m map[uint16]string) map[string]uint16 {
	out := make(map[string]uint16, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// ParseQualifier parses a values-<qualifier> directory suffix (everything
// after "values", without the leading dash) back into a ConfigFlags. It
// recognizes exactly the qualifier forms Canonical produces.
func ParseQualifier(qualifier string) (ConfigFlags, error) {
	var cfg ConfigFlags
	if qualifier == "" {
		return cfg, nil
	}

	for _, part := range strings.Split(qualifier, "-") {
		switch {
		case strings.HasPrefix(part, "mcc"):
			n, err := strconv.Atoi(part[3:])
			if err != nil {
				return cfg, fmt.Errorf("invalid mcc qualifier %q: %w", part, err)
			}
			cfg.Mcc = uint16(n)
		case strings.HasPrefix(part, "mnc"):
			n, err := strconv.Atoi(part[3:])
			if err != nil {
				return cfg, fmt.Errorf("invalid mnc qualifier %q: %w", part, err)
			}
			cfg.Mnc = uint16(n)
		case part == "ldltr":
			cfg.ScreenLayout = (cfg.ScreenLayout &^ maskLayoutDir) | layoutDirLTR
		case part == "ldrtl":
			cfg.ScreenLayout = (cfg.ScreenLayout &^ maskLayoutDir) | layoutDirRTL
		case strings.HasPrefix(part, "sw") && strings.HasSuffix(part, "dp"):
			n, err := strconv.Atoi(part[2 : len(part)-2])
			if err != nil {
				return cfg, fmt.Errorf("invalid sw qualifier %q: %w", part, err)
			}
			cfg.SmallestScreenWidthDp = uint16(n)
		case strings.HasPrefix(part, "w") && strings.HasSuffix(part, "dp"):
			n, err := strconv.Atoi(part[1 : len(part)-2])
			if err != nil {
				return cfg, fmt.Errorf("invalid w qualifier %q: %w", part, err)
			}
			cfg.ScreenWidthDp = uint16(n)
		case strings.HasPrefix(part, "h") && strings.HasSuffix(part, "dp"):
			n, err := strconv.Atoi(part[1 : len(part)-2])
			if err != nil {
				return cfg, fmt.Errorf("invalid h qualifier %q: %w", part, err)
			}
			cfg.ScreenHeightDp = uint16(n)
		case part == "long":
			cfg.ScreenLayout = (cfg.ScreenLayout &^ maskScreenLong) | 0x20
		case part == "notlong":
			cfg.ScreenLayout = (cfg.ScreenLayout &^ maskScreenLong) | 0x10
		case part == "night":
			cfg.UIMode = (cfg.UIMode &^ maskUIModeNight) | 0x20
		case part == "notnight":
			cfg.UIMode = (cfg.UIMode &^ maskUIModeNight) | 0x10
		case strings.HasPrefix(part, "v") && isDigits(part[1:]):
			n, err := strconv.Atoi(part[1:])
			if err != nil {
				return cfg, fmt.Errorf("invalid sdk version qualifier %q: %w", part, err)
			}
			cfg.SDKVersion = uint16(n)
		case part == "nodpi" || part == "anydpi" || strings.HasSuffix(part, "dpi"):
			if v, ok := densityByName[part]; ok {
				cfg.Density = v
			} else {
				n, err := strconv.Atoi(strings.TrimSuffix(part, "dpi"))
				if err != nil {
					return cfg, fmt.Errorf("invalid density qualifier %q: %w", part, err)
				}
				cfg.Density = uint16(n)
			}
		case part == "small" || part == "normal" || part == "large" || part == "xlarge":
			cfg.ScreenLayout = (cfg.ScreenLayout &^ maskScreenSize) | screenSizeByName[part]
		case part == "port" || part == "land":
			cfg.Orientation = orientationByName[part]
		case len(part) == 2:
			copy(cfg.Language[:], part)
		case len(part) == 3 && part[0] == 'r':
			copy(cfg.Country[:], part[1:])
		default:
			return cfg, fmt.Errorf("unrecognized qualifier %q", part)
		}
	}

	return cfg, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
