// Package mapgen turns parsed BSP faces into material-batched triangle meshes.
package mapgen

import (
	"errors"
	"fmt"

	"github.com/Faultbox/bspmesh/internal/material"
	"github.com/Faultbox/bspmesh/internal/mesh"
	"github.com/Faultbox/bspmesh/pkg/formats"
)

var (
	// ErrMalformedMap reports out-of-range references found while building.
	// It is the same sentinel the parser uses.
	ErrMalformedMap = formats.ErrMalformedBSP

	ErrInvalidTessellation = errors.New("tessellation level must be at least 1")
)

// GroupKey identifies faces that can share one combined mesh.
type GroupKey struct {
	Kind          formats.FaceKind
	Texture       int32
	LightmapIndex int32
}

// FaceGroup is a set of faces sharing a GroupKey, in file order.
type FaceGroup struct {
	Key   GroupKey
	Faces []int
}

// GroupMesh is the combined output of one FaceGroup.
type GroupMesh struct {
	Key      GroupKey
	Texture  string // Normalized texture name
	Faces    []int
	Mesh     *mesh.Mesh
	Material *material.Material // nil when the builder has no resolver
}

// Result is the output of a full map build.
type Result struct {
	Groups      []*GroupMesh // Non-empty groups in classification order
	Diagnostics []Diagnostic
	Faces       int // Faces that produced geometry
}

// DiagnosticKind classifies a non-fatal condition.
type DiagnosticKind int

const (
	DiagUnsupportedFaceKind DiagnosticKind = iota + 1
	DiagUnresolvedTexture
	DiagDegeneratePatch
)

// String returns the diagnostic kind name.
func (k DiagnosticKind) String() string {
	switch k {
	case DiagUnsupportedFaceKind:
		return "UnsupportedFaceKind"
	case DiagUnresolvedTexture:
		return "UnresolvedTexture"
	case DiagDegeneratePatch:
		return "DegeneratePatch"
	default:
		return fmt.Sprintf("Diagnostic(%d)", int(k))
	}
}

// Diagnostic records a condition that was tolerated during a build.
// Face and Group are -1 when they do not apply.
type Diagnostic struct {
	Kind   DiagnosticKind
	Face   int
	Group  int
	Detail string
}

func (d Diagnostic) String() string {
	s := d.Kind.String()
	if d.Face >= 0 {
		s += fmt.Sprintf(" face=%d", d.Face)
	}
	if d.Group >= 0 {
		s += fmt.Sprintf(" group=%d", d.Group)
	}
	if d.Detail != "" {
		s += ": " + d.Detail
	}
	return s
}
