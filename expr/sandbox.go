package expr

import (
	"regexp"

	"github.com/dop251/goja"
)

// The evaluator refuses any source that mentions the prototype
// machinery.  A fresh runtime per evaluation already keeps pollution
// from spreading, but there's no reason to let an expression rummage
// around in there at all, so the check is on the raw source and it's
// deliberately blunt: the token appearing anywhere, even in a string
// literal, is a rejection.
var forbidden = regexp.MustCompile(`(^|[^A-Za-z0-9_$])(__proto__|prototype|constructor)([^A-Za-z0-9_$]|$)`)

// CheckSandbox rejects source that touches forbidden tokens.
func CheckSandbox(src string) error {
	if m := forbidden.FindStringSubmatch(src); m != nil {
		return &SandboxError{Token: m[2]}
	}
	return nil
}

// The source check can't see a forbidden name spelled at runtime, so
// every fresh runtime also drops the intrinsics that walk the
// prototype chain.  A computed access like x["proto" + ...] then just
// comes up undefined.
var prelude = goja.MustCompile("prelude", `
(function() {
	delete Object.prototype.__proto__;
	var roots = ["Object", "Array", "Function", "String", "Number",
		"Boolean", "Date", "RegExp", "Error", "TypeError", "RangeError",
		"SyntaxError", "ReferenceError", "EvalError", "URIError",
		"Symbol", "Promise", "Proxy"];
	for (var i = 0; i < roots.length; i++) {
		var t = this[roots[i]];
		if (t && t.prototype) {
			delete t.prototype.constructor;
		}
	}
	delete Object.getPrototypeOf;
	delete Object.setPrototypeOf;
	delete this.Reflect;
})();
`, false)
