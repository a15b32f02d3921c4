// Package topology generates deterministic spine/leaf/server fabric datasets
// for bulk loading: devices, interfaces, cables, and staged cable
// terminations. The same Spec always yields the same names, labels, and
// endpoint assignments.
package topology

import "fmt"

// Tier is the fabric level a device sits at.
type Tier string

const (
	TierSpine  Tier = "spine"
	TierLeaf   Tier = "leaf"
	TierServer Tier = "server"
)

// Spec is the immutable configuration of one fabric. Construct it once per
// run; every generation function derives from it without mutating it.
type Spec struct {
	Pods           int
	SpinesPerPod   int
	LeavesPerPod   int
	ServersPerLeaf int
	NICsPerServer  int

	SpinePorts int
	LeafPorts  int

	// Prefix namespaces all device names and cable labels so a fabric can
	// be filtered, exported, and torn down as a unit.
	Prefix string

	SpineInterfaceType  string
	LeafInterfaceType   string
	ServerInterfaceType string

	CableType   string
	CableStatus string
}

// DefaultSpec returns the reference fabric: 8 pods of 4 spines and 32 leaves,
// 16 servers per leaf with 8 fabric NICs each.
func DefaultSpec() Spec {
	return Spec{
		Pods:                8,
		SpinesPerPod:        4,
		LeavesPerPod:        32,
		ServersPerLeaf:      16,
		NICsPerServer:       8,
		SpinePorts:          64,
		LeafPorts:           64,
		Prefix:              "gpu-dc",
		SpineInterfaceType:  "400gbase-x-qsfpdd",
		LeafInterfaceType:   "400gbase-x-qsfpdd",
		ServerInterfaceType: "400gbase-x-qsfpdd",
		CableType:           "mmf-om4",
		CableStatus:         "connected",
	}
}

// Validate checks that the dimensions describe a buildable fabric: positive
// counts and enough leaf ports for the uplinks. Server connections may
// oversubscribe the downlink range; cables on ports past LeafPorts are still
// generated but never get terminations, since no interface exists there.
func (s Spec) Validate() error {
	if s.Prefix == "" {
		return fmt.Errorf("prefix is required")
	}
	for _, d := range []struct {
		name  string
		value int
	}{
		{"pods", s.Pods},
		{"spines per pod", s.SpinesPerPod},
		{"leaves per pod", s.LeavesPerPod},
		{"servers per leaf", s.ServersPerLeaf},
		{"nics per server", s.NICsPerServer},
		{"spine ports", s.SpinePorts},
		{"leaf ports", s.LeafPorts},
	} {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", d.name, d.value)
		}
	}
	if s.LeafDownlinks() < 0 {
		return fmt.Errorf("leaf ports (%d) cannot fit %d uplinks", s.LeafPorts, s.LeafUplinks())
	}
	return nil
}

// TotalSpines is the spine switch count across all pods.
func (s Spec) TotalSpines() int {
	return s.Pods * s.SpinesPerPod
}

// TotalLeaves is the leaf switch count across all pods.
func (s Spec) TotalLeaves() int {
	return s.Pods * s.LeavesPerPod
}

// TotalServers is the server count across all leaves.
func (s Spec) TotalServers() int {
	return s.TotalLeaves() * s.ServersPerLeaf
}

// TotalDevices is the device count across all tiers.
func (s Spec) TotalDevices() int {
	return s.TotalSpines() + s.TotalLeaves() + s.TotalServers()
}

// LeafUplinks is the uplink port count per leaf: two redundant links to each
// spine in the pod.
func (s Spec) LeafUplinks() int {
	return 2 * s.SpinesPerPod
}

// LeafDownlinks is the server-facing port count per leaf.
func (s Spec) LeafDownlinks() int {
	return s.LeafPorts - s.LeafUplinks()
}

// EstimatedCables is the cable count the generator will produce for this
// spec: one per leaf uplink plus one per server NIC.
func (s Spec) EstimatedCables() int {
	return s.TotalLeaves()*s.LeafUplinks() + s.TotalServers()*s.NICsPerServer
}

// SpineName returns the name of spine unit su in pod.
func (s Spec) SpineName(pod, su int) string {
	return fmt.Sprintf("%s-spine-p%02d-s%02d", s.Prefix, pod, su)
}

// LeafName returns the name of leaf unit lu in pod.
func (s Spec) LeafName(pod, lu int) string {
	return fmt.Sprintf("%s-leaf-p%02d-r%02d", s.Prefix, pod, lu)
}

// ServerName returns the name of server unit su under leaf lu in pod.
func (s Spec) ServerName(pod, lu, su int) string {
	return fmt.Sprintf("%s-srv-p%02d-r%02d-u%02d", s.Prefix, pod, lu, su)
}

// InterfaceKey is the natural key of an interface before server IDs exist.
func InterfaceKey(deviceName string, port int) string {
	return fmt.Sprintf("%s:eth%d", deviceName, port)
}
