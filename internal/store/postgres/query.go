package postgres

import (
	"strconv"
	"strings"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

// filter accumulates AND-ed conditions with positional arguments. Each
// condition uses "?" for its single argument.
type filter struct {
	conds []string
	args  []any
}

func (f *filter) next() string {
	return "$" + strconv.Itoa(len(f.args))
}

func (f *filter) where(cond string, arg any) {
	f.args = append(f.args, arg)
	f.conds = append(f.conds, strings.Replace(cond, "?", f.next(), 1))
}

// window restricts col to opts.Since..opts.Until.
func (f *filter) window(col string, opts domain.ListOpts) {
	if opts.Since != nil {
		f.where(col+" >= ?", *opts.Since)
	}
	if opts.Until != nil {
		f.where(col+" <= ?", *opts.Until)
	}
}

// build returns "base WHERE ... ORDER BY order LIMIT .. OFFSET ..".
func (f *filter) build(base, order string, opts domain.ListOpts) (string, []any) {
	var b strings.Builder
	b.WriteString(base)
	if len(f.conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(f.conds, " AND "))
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(order)
	if opts.Limit > 0 {
		f.args = append(f.args, opts.Limit)
		b.WriteString(" LIMIT " + f.next())
	}
	if opts.Offset > 0 {
		f.args = append(f.args, opts.Offset)
		b.WriteString(" OFFSET " + f.next())
	}
	return b.String(), f.args
}
