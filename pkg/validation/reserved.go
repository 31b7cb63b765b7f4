package validation

// reservedWords is the deny-list of target-language keywords (Kotlin/Java,
// the languages of the generated Android artifacts) that may not be used as
// an app_name or feature identifier.
var reservedWords = map[string]bool{
	"package": true, "import": true, "class": true, "interface": true,
	"object": true, "fun": true, "val": true, "var": true, "return": true,
	"if": true, "else": true, "when": true, "for": true, "while": true,
	"do": true, "try": true, "catch": true, "finally": true, "throw": true,
	"is": true, "as": true, "in": true, "out": true, "this": true,
	"super": true, "null": true, "true": true, "false": true, "typealias": true,
	"typeof": true, "override": true, "abstract": true, "final": true,
	"open": true, "const": true, "companion": true, "init": true,
	"constructor": true, "by": true, "where": true, "get": true, "set": true,
	"public": true, "private": true, "protected": true, "internal": true,
	"enum": true, "sealed": true, "data": true, "annotation": true,
	"inline": true, "noinline": true, "crossinline": true, "reified": true,
	"suspend": true, "vararg": true, "field": true, "property": true,
	"receiver": true, "param": true, "setparam": true, "delegate": true,
	"file": true, "dynamic": true, "package-info": true, "void": true,
	"int": true, "long": true, "double": true, "float": true, "boolean": true,
	"byte": true, "short": true, "char": true, "string": true, "new": true,
	"static": true, "synchronized": true, "native": true, "transient": true,
	"volatile": true, "extends": true, "implements": true, "instanceof": true,
	"throws": true, "assert": true, "default": true, "switch": true,
	"case": true, "break": true, "continue": true, "goto": true,
}

// isReserved reports whether name (case-sensitive) is a reserved
// target-language keyword.
func isReserved(name string) bool {
	return reservedWords[name]
}
