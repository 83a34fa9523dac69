// Package detector holds rule-based content checks: the drive-support diagnostic
// for spider code and the single-page-app heuristic used by the wizard preflight.
package detector
