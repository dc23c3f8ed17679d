package layout

// US host layout. Index is the ASCII code.
var usChars = [128]Entry{
	'\b': {Usage: UsageBackspace},
	'\t': {Usage: UsageTab},
	'\n': {Usage: UsageEnter},
	'\r': {Usage: UsageEnter},
	0x1B: {Usage: UsageEscape},
	' ':  {Usage: UsageSpace},
	'!':  {Usage: Usage1, Mods: ModLShift},
	'"':  {Usage: UsageQuote, Mods: ModLShift},
	'#':  {Usage: Usage1 + 2, Mods: ModLShift},
	'$':  {Usage: Usage1 + 3, Mods: ModLShift},
	'%':  {Usage: Usage1 + 4, Mods: ModLShift},
	'&':  {Usage: Usage1 + 6, Mods: ModLShift},
	'\'': {Usage: UsageQuote},
	'(':  {Usage: Usage1 + 8, Mods: ModLShift},
	')':  {Usage: Usage0, Mods: ModLShift},
	'*':  {Usage: Usage1 + 7, Mods: ModLShift},
	'+':  {Usage: UsageEqual, Mods: ModLShift},
	',':  {Usage: UsageComma},
	'-':  {Usage: UsageMinus},
	'.':  {Usage: UsagePeriod},
	'/':  {Usage: UsageSlash},
	':':  {Usage: UsageSemicolon, Mods: ModLShift},
	';':  {Usage: UsageSemicolon},
	'<':  {Usage: UsageComma, Mods: ModLShift},
	'=':  {Usage: UsageEqual},
	'>':  {Usage: UsagePeriod, Mods: ModLShift},
	'?':  {Usage: UsageSlash, Mods: ModLShift},
	'@':  {Usage: Usage1 + 1, Mods: ModLShift},
	'[':  {Usage: UsageLBracket},
	'\\': {Usage: UsageBackslash},
	']':  {Usage: UsageRBracket},
	'^':  {Usage: Usage1 + 5, Mods: ModLShift},
	'_':  {Usage: UsageMinus, Mods: ModLShift},
	'`':  {Usage: UsageGrave},
	'{':  {Usage: UsageLBracket, Mods: ModLShift},
	'|':  {Usage: UsageBackslash, Mods: ModLShift},
	'}':  {Usage: UsageRBracket, Mods: ModLShift},
	'~':  {Usage: UsageGrave, Mods: ModLShift},
}

// CharKey returns the entry that types r on a US host layout.
func CharKey(r rune) (Entry, bool) {
	switch {
	case r >= 'a' && r <= 'z':
		return Entry{Usage: Letter(byte(r))}, true
	case r >= 'A' && r <= 'Z':
		return Entry{Usage: Letter(byte(r - 'A' + 'a')), Mods: ModLShift}, true
	case r == '0':
		return Entry{Usage: Usage0}, true
	case r >= '1' && r <= '9':
		return Entry{Usage: Usage1 + Usage(r-'1')}, true
	case r >= 0 && r < 128:
		e := usChars[r]
		return e, e.Usage != UsageNone
	}
	return Entry{}, false
}
