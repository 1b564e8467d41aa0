package rules

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

var regexCache sync.Map // pattern -> *regexp.Regexp

// regexFunction declares matches_regex(value, pattern), a full match of the
// value's string form against pattern.
func regexFunction() cel.EnvOption {
	return cel.Function("matches_regex",
		cel.Overload("matches_regex_dyn_string",
			[]*cel.Type{cel.DynType, cel.StringType},
			cel.BoolType,
			cel.BinaryBinding(matchesRegex),
		),
	)
}

func matchesRegex(value, pattern ref.Val) ref.Val {
	p, ok := pattern.(types.String)
	if !ok {
		return types.MaybeNoSuchOverloadErr(pattern)
	}

	s, ok := stringify(value)
	if !ok {
		return types.False
	}

	re, err := fullMatchRegexp(string(p))
	if err != nil {
		return types.NewErr("matches_regex: %v", err)
	}
	return types.Bool(re.MatchString(s))
}

func fullMatchRegexp(pattern string) (*regexp.Regexp, error) {
	if re, ok := regexCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, err
	}
	regexCache.Store(pattern, re)
	return re, nil
}

func stringify(v ref.Val) (string, bool) {
	switch val := v.(type) {
	case types.String:
		return string(val), true
	case types.Double:
		return strconv.FormatFloat(float64(val), 'f', -1, 64), true
	case types.Int:
		return strconv.FormatInt(int64(val), 10), true
	case types.Uint:
		return strconv.FormatUint(uint64(val), 10), true
	case types.Bool:
		return strconv.FormatBool(bool(val)), true
	default:
		return "", false
	}
}

// bindValue converts a raw profile value into a CEL value. Finite numbers
// become doubles, true/false become bools and missing fields become null.
// Integer literals in conditions are compiled as doubles to match.
func bindValue(raw string, present bool) any {
	if !present {
		return types.NullValue
	}

	s := strings.TrimSpace(raw)
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return raw
}
