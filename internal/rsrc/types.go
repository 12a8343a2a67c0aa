package rsrc

import "fmt"

// ResourceType is the numeric selector of a top-level resource directory.
type ResourceType uint32

// Predefined resource types.
const (
	RT_CURSOR       ResourceType = 1
	RT_BITMAP       ResourceType = 2
	RT_ICON         ResourceType = 3
	RT_MENU         ResourceType = 4
	RT_DIALOG       ResourceType = 5
	RT_STRING       ResourceType = 6
	RT_FONTDIR      ResourceType = 7
	RT_FONT         ResourceType = 8
	RT_ACCELERATOR  ResourceType = 9
	RT_RCDATA       ResourceType = 10
	RT_MESSAGETABLE ResourceType = 11
	RT_GROUP_CURSOR ResourceType = 12
	RT_GROUP_ICON   ResourceType = 14
	RT_VERSION      ResourceType = 16
	RT_DLGINCLUDE   ResourceType = 17
	RT_PLUGPLAY     ResourceType = 19
	RT_VXD          ResourceType = 20
	RT_ANICURSOR    ResourceType = 21
	RT_ANIICON      ResourceType = 22
	RT_HTML         ResourceType = 23
	RT_MANIFEST     ResourceType = 24
)

var typeNames = map[ResourceType]string{
	RT_CURSOR:       "CURSOR",
	RT_BITMAP:       "BITMAP",
	RT_ICON:         "ICON",
	RT_MENU:         "MENU",
	RT_DIALOG:       "DIALOG",
	RT_STRING:       "STRING",
	RT_FONTDIR:      "FONTDIR",
	RT_FONT:         "FONT",
	RT_ACCELERATOR:  "ACCELERATOR",
	RT_RCDATA:       "RCDATA",
	RT_MESSAGETABLE: "MESSAGETABLE",
	RT_GROUP_CURSOR: "GROUP_CURSOR",
	RT_GROUP_ICON:   "GROUP_ICON",
	RT_VERSION:      "VERSION",
	RT_DLGINCLUDE:   "DLGINCLUDE",
	RT_PLUGPLAY:     "PLUGPLAY",
	RT_VXD:          "VXD",
	RT_ANICURSOR:    "ANICURSOR",
	RT_ANIICON:      "ANIICON",
	RT_HTML:         "HTML",
	RT_MANIFEST:     "MANIFEST",
}

// String returns the conventional name without the RT_ prefix, or the
// number for application-defined types.
func (t ResourceType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("%d", uint32(t))
}

// Known reports whether t is one of the predefined types.
func (t ResourceType) Known() bool {
	_, ok := typeNames[t]
	return ok
}

// ParseResourceType maps a name such as "ICON" or "RT_ICON" back to its type.
func ParseResourceType(name string) (ResourceType, bool) {
	if len(name) > 3 && name[:3] == "RT_" {
		name = name[3:]
	}
	for t, n := range typeNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}
