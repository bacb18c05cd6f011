// Package nav builds the header, footer and breadcrumb view models.
package nav

import (
	"path"
	"strings"
)

// Item is a navigation link.
type Item struct {
	Path  string `json:"path"`
	Label string `json:"label"`
}

// RenderedItem is an item with its active state for the current path.
type RenderedItem struct {
	Href   string `json:"href"`
	Label  string `json:"label"`
	Active bool   `json:"active"`
}

// Crumb is a breadcrumb entry.
type Crumb struct {
	Href   string `json:"href"`
	Label  string `json:"label"`
	Active bool   `json:"active"`
}

// Group is a titled list of footer links.
type Group struct {
	Title string `json:"title"`
	Items []Item `json:"items"`
}

// External is an off-site link.
type External struct {
	Label string `json:"label"`
	Name  string `json:"name"`
	Href  string `json:"href"`
}

// Footer is the site footer.
type Footer struct {
	Title     string     `json:"title"`
	Tagline   string     `json:"tagline"`
	Groups    []Group    `json:"groups"`
	Connect   string     `json:"connect"`
	Social    []External `json:"social"`
	Copyright string     `json:"copyright"`
}

// Bar is everything the page chrome needs for one path.
type Bar struct {
	Brand       string         `json:"brand"`
	Items       []RenderedItem `json:"items"`
	Breadcrumbs []Crumb        `json:"breadcrumbs"`
	Footer      Footer         `json:"footer"`
	CartCount   int            `json:"cartCount"`
	CartHref    string         `json:"cartHref"`
}

// Brand is the wordmark shown in the header and footer.
const Brand = "FILLESUMÉ"

// Main is the primary navigation.
var Main = []Item{
	{Path: "/", Label: "HOME"},
	{Path: "/about", Label: "ABOUT"},
	{Path: "/biotextil", Label: "BIOTEXTIL"},
	{Path: "/shop", Label: "SHOP"},
	{Path: "/contact", Label: "CONTACT"},
}

// Legal lists the legal pages linked from the footer.
var Legal = []Item{
	{Path: "/privacy-policy", Label: "Privacy Policy"},
	{Path: "/terms", Label: "Terms & Conditions"},
	{Path: "/data-policy", Label: "Data Policy"},
}

var quickLinks = []Item{
	{Path: "/about", Label: "About"},
	{Path: "/biotextil", Label: "BioTextil"},
	{Path: "/shop", Label: "Shop"},
	{Path: "/contact", Label: "Contact"},
}

var social = []External{
	{Label: "IG", Name: "Instagram", Href: "https://instagram.com"},
	{Label: "FB", Name: "Facebook", Href: "https://facebook.com"},
	{Label: "LI", Name: "LinkedIn", Href: "https://linkedin.com"},
}

// extra labels for pages outside the main menu
var labels = map[string]string{
	"/cart":  "CART",
	"/legal": "LEGAL",
}

// Build renders the main navigation with active state given the current path.
func Build(currentPath string) []RenderedItem {
	currentPath = normalize(currentPath)
	items := make([]RenderedItem, 0, len(Main))
	for _, it := range Main {
		items = append(items, RenderedItem{
			Href:   it.Path,
			Label:  it.Label,
			Active: isActive(it.Path, currentPath),
		})
	}
	return items
}

func isActive(itemPath, currentPath string) bool {
	if itemPath == "/" {
		return currentPath == "/"
	}
	return currentPath == itemPath || strings.HasPrefix(currentPath, itemPath+"/")
}

// Breadcrumbs builds breadcrumb entries from the current path, starting at Home.
func Breadcrumbs(currentPath string) []Crumb {
	currentPath = normalize(currentPath)
	crumbs := []Crumb{{Href: "/", Label: "HOME", Active: currentPath == "/"}}
	if currentPath == "/" {
		return crumbs
	}

	parts := strings.Split(strings.TrimPrefix(currentPath, "/"), "/")
	href := ""
	for i, part := range parts {
		href += "/" + part
		crumbs = append(crumbs, Crumb{
			Href:   href,
			Label:  labelFor(href, part),
			Active: i == len(parts)-1,
		})
	}
	return crumbs
}

// FooterLinks returns the site footer.
func FooterLinks() Footer {
	return Footer{
		Title:   Brand,
		Tagline: "Pioneering sustainable fashion through innovative biomaterials and circular design.",
		Groups: []Group{
			{Title: "QUICK LINKS", Items: append([]Item(nil), quickLinks...)},
			{Title: "LEGAL", Items: append([]Item(nil), Legal...)},
		},
		Connect:   "Follow our journey towards sustainable fashion",
		Social:    append([]External(nil), social...),
		Copyright: "2024 " + Brand + ". ALL RIGHTS RESERVED.",
	}
}

// Render assembles the page chrome for currentPath with the cart badge count.
func Render(currentPath string, cartCount int) Bar {
	if cartCount < 0 {
		cartCount = 0
	}
	return Bar{
		Brand:       Brand,
		Items:       Build(currentPath),
		Breadcrumbs: Breadcrumbs(currentPath),
		Footer:      FooterLinks(),
		CartCount:   cartCount,
		CartHref:    "/cart",
	}
}

func labelFor(href, segment string) string {
	for _, it := range Main {
		if it.Path == href {
			return it.Label
		}
	}
	for _, it := range Legal {
		if it.Path == href {
			return strings.ToUpper(it.Label)
		}
	}
	if label, ok := labels[href]; ok {
		return label
	}
	return titleFromSegment(segment)
}

func normalize(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	clean := path.Clean("/" + p)
	return clean
}

func titleFromSegment(seg string) string {
	s := strings.ReplaceAll(seg, "-", " ")
	s = strings.ReplaceAll(s, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
