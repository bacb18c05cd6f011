package nav

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBuildMarksActive(t *testing.T) {
	tests := map[string]string{
		"":                  "/",
		"/":                 "/",
		"/shop":             "/shop",
		"/shop/123":         "/shop",
		"/biotextil?step=2": "/biotextil",
		"/about/../contact": "/contact",
		"/shopping":         "",
		"/privacy-policy":   "",
	}
	for current, want := range tests {
		var active []string
		for _, it := range Build(current) {
			if it.Active {
				active = append(active, it.Href)
			}
		}
		switch {
		case want == "" && len(active) != 0:
			t.Fatalf("Build(%q): expected nothing active, got %v", current, active)
		case want != "" && (len(active) != 1 || active[0] != want):
			t.Fatalf("Build(%q): active %v, want %s", current, active, want)
		}
	}
}

func TestBreadcrumbs(t *testing.T) {
	got := Breadcrumbs("/shop/organic-corset")
	want := []Crumb{
		{Href: "/", Label: "HOME"},
		{Href: "/shop", Label: "SHOP"},
		{Href: "/shop/organic-corset", Label: "Organic corset", Active: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("breadcrumbs mismatch (-want +got):\n%s", diff)
	}

	legal := Breadcrumbs("/privacy-policy")
	if legal[1].Label != "PRIVACY POLICY" || !legal[1].Active {
		t.Fatalf("unexpected legal crumb: %+v", legal[1])
	}
	if cart := Breadcrumbs("/cart"); cart[1].Label != "CART" {
		t.Fatalf("unexpected cart crumb: %+v", cart[1])
	}
	if home := Breadcrumbs("/"); len(home) != 1 || !home[0].Active {
		t.Fatalf("unexpected home crumbs: %+v", home)
	}
}

func TestRender(t *testing.T) {
	bar := Render("/shop", 3)
	if bar.CartCount != 3 || bar.Brand != Brand || len(bar.Items) != 5 {
		t.Fatalf("unexpected bar: %+v", bar)
	}
	if Render("/", -2).CartCount != 0 {
		t.Fatalf("negative counts must clamp to zero")
	}

	footer := bar.Footer
	if len(footer.Groups) != 2 || footer.Groups[1].Title != "LEGAL" || len(footer.Groups[1].Items) != 3 {
		t.Fatalf("unexpected footer groups: %+v", footer.Groups)
	}
	footer.Groups[1].Items[0].Label = "changed"
	if Legal[0].Label != "Privacy Policy" {
		t.Fatalf("footer must not alias package links")
	}
}
