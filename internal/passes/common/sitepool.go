package common

import (
	"fmt"
	"strings"

	"github.com/coretrace/coretrace/internal/ir"
)

// SitePool deduplicates interned site strings into module-level string
// constants and returns a ready-to-use `i8*` call argument for each,
// the way clang itself lowers C string literal arguments: a `private
// unnamed_addr constant [N x i8]` global plus a `getelementptr
// inbounds` reference. Shared by every pass that appends a site
// pointer to a runtime call (Pass.Alloc, Pass.Bounds, Pass.Trace,
// Pass.Vtable).
type SitePool struct {
	m       *ir.Module
	byText  map[string]string
	counter int
}

// NewSitePool creates a pool that appends its deduplicated string
// globals to m.
func NewSitePool(m *ir.Module) *SitePool {
	return &SitePool{m: m, byText: map[string]string{}}
}

// Ref returns the "i8* getelementptr (...)" argument text for site,
// creating its backing global constant on first use.
func (p *SitePool) Ref(site string) string {
	name, ok := p.byText[site]
	if !ok {
		name = fmt.Sprintf(".ct.site.%d", p.counter)
		p.counter++
		p.byText[site] = name
		typ, init := llvmStringLiteral(site)
		p.m.Globals = append(p.m.Globals, &ir.Global{
			Name:     name,
			Linkage:  "private unnamed_addr",
			IsConst:  true,
			Type:     typ,
			Init:     init,
			Modified: true,
		})
	}
	n := len(site) + 1
	return fmt.Sprintf("i8* getelementptr inbounds ([%d x i8], [%d x i8]* @%s, i64 0, i64 0)", n, n, name)
}

func llvmStringLiteral(s string) (typ, init string) {
	n := len(s) + 1
	var b strings.Builder
	b.WriteByte('c')
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' || c < 0x20 || c >= 0x7f {
			fmt.Fprintf(&b, "\\%02X", c)
		} else {
			b.WriteByte(c)
		}
	}
	b.WriteString(`\00`)
	b.WriteByte('"')
	return fmt.Sprintf("[%d x i8]", n), b.String()
}
