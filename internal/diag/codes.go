package diag

import (
	"fmt"
)

type Code uint16

const (
	UnknownCode Code = 0

	// Source syntax
	SynInfo            Code = 2000
	SynParseError      Code = 2001
	SynBadType         Code = 2002
	SynBadAttribute    Code = 2003
	SynUnsupportedItem Code = 2004

	// Resolution
	ResInfo             Code = 3000
	ResUnresolvedType   Code = 3001
	ResUnresolvedTrait  Code = 3002
	ResUnresolvedImport Code = 3003
	ResMissingModule    Code = 3004
	ResUnknownCrate     Code = 3005
	ResAliasCycle       Code = 3006

	// Classification
	ClsInfo                 Code = 3100
	ClsUnsupportedType      Code = 3101
	ClsRegistryConflict     Code = 3102
	ClsGenericSkipped       Code = 3103
	ClsReceiverSkipped      Code = 3104
	ClsRegisterBadTarget    Code = 3105
	ClsConversionIncomplete Code = 3106

	// IO
	IOReadFailed   Code = 4001
	IOCacheCorrupt Code = 4002

	// Project configuration
	PrjManifestNotFound Code = 5001
	PrjManifestInvalid  Code = 5002

	// Emission
	EmtWriteFailed    Code = 6001
	EmtHeaderFailed   Code = 6002
	EmtFrontendFailed Code = 6003
	EmtNameCollision  Code = 6004
	EmtStaleOutput    Code = 6005
)

var codeDescription = map[Code]string{
	UnknownCode:             "Unknown error",
	SynInfo:                 "Syntax information",
	SynParseError:           "Source could not be parsed",
	SynBadType:              "Malformed type expression",
	SynBadAttribute:         "Malformed ferment attribute",
	SynUnsupportedItem:      "Item is not supported and was skipped",
	ResInfo:                 "Resolution information",
	ResUnresolvedType:       "Unresolved type",
	ResUnresolvedTrait:      "Unresolved trait",
	ResUnresolvedImport:     "Unresolved import",
	ResMissingModule:        "Module file not found",
	ResUnknownCrate:         "Unknown crate",
	ResAliasCycle:           "Type alias cycle",
	ClsInfo:                 "Classification information",
	ClsUnsupportedType:      "Type has no FFI strategy",
	ClsRegistryConflict:     "Conflicting custom conversion",
	ClsGenericSkipped:       "Generic function skipped",
	ClsReceiverSkipped:      "Method receiver not supported",
	ClsRegisterBadTarget:    "Invalid register target",
	ClsConversionIncomplete: "Custom conversion is missing a direction",
	IOReadFailed:            "Failed to read file",
	IOCacheCorrupt:          "Parse cache entry is corrupt",
	PrjManifestNotFound:     "ferment.toml not found",
	PrjManifestInvalid:      "Invalid ferment.toml",
	EmtWriteFailed:          "Failed to write fermentate",
	EmtHeaderFailed:         "Header generator failed",
	EmtFrontendFailed:       "Front-end generation failed",
	EmtNameCollision:        "Generated name collision",
	EmtStaleOutput:          "Generated output is stale",
}

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("SYN%04d", ic)
	case ic >= 3000 && ic < 3100:
		return fmt.Sprintf("RES%04d", ic)
	case ic >= 3100 && ic < 4000:
		return fmt.Sprintf("CLS%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("IO%04d", ic)
	case ic >= 5000 && ic < 6000:
		return fmt.Sprintf("PRJ%04d", ic)
	case ic >= 6000 && ic < 7000:
		return fmt.Sprintf("EMT%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
