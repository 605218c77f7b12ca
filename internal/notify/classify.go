package notify

import (
	"path"
	"strings"
)

// Category describes what kind of asset changed
type Category string

const (
	Stylesheet Category = "stylesheet"
	Image      Category = "image"
	Script     Category = "script"
	Page       Category = "page"
)

// Mode tells the browser how to apply a change
type Mode string

const (
	// Swap replaces the asset in place without reloading the page
	Swap Mode = "swap"
	// Full reloads the whole page
	Full Mode = "full"
)

var extensions = map[string]Category{
	".css":  Stylesheet,
	".scss": Stylesheet,
	".less": Stylesheet,
	".png":  Image,
	".jpg":  Image,
	".jpeg": Image,
	".gif":  Image,
	".svg":  Image,
	".webp": Image,
	".ico":  Image,
	".js":   Script,
	".mjs":  Script,
	".ts":   Script,
	".map":  Script,
}

// Classify returns the category of a changed path. Anything that is not a
// stylesheet, image or script is treated as a page.
func Classify(p string) Category {
	if c, ok := extensions[strings.ToLower(path.Ext(p))]; ok {
		return c
	}
	return Page
}

// Mode returns how a change of this category is applied
func (c Category) Mode() Mode {
	switch c {
	case Stylesheet, Image:
		return Swap
	default:
		return Full
	}
}

// classifyBatch picks one category for a set of paths. Swappable changes
// stay swappable only when every path is swappable; otherwise the batch takes
// the category that forces a full reload, preferring page over script.
func classifyBatch(paths []string) Category {
	seen := make(map[Category]bool)
	for _, p := range paths {
		seen[Classify(p)] = true
	}
	switch {
	case seen[Page] || len(paths) == 0:
		return Page
	case seen[Script]:
		return Script
	case seen[Stylesheet]:
		return Stylesheet
	default:
		return Image
	}
}
