// Package shadows computes the per-frame shadow-map assignment: PSSM/SDSM
// cascade splits for directional lights, stabilized orthographic cascade
// projections snapped to shadow-map texels, and the perspective projections
// for spot and point lights (one slot per spot, six per point).
//
// All projections follow the renderer's reverse-Z convention: the near
// plane maps to depth 1 and clears are 0.
package shadows
