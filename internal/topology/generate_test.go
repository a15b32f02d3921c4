package topology

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

// fakeIDs assigns sequential IDs to every device and interface the spec
// generates, standing in for the server-side ID assignment.
func fakeIDs(s Spec) (deviceIDs, interfaceIDs map[string]int64) {
	typeIDs := map[string]int64{}
	spineType, leafType, serverType := s.TypeSlugs()
	typeIDs[spineType], typeIDs[leafType], typeIDs[serverType] = 1, 2, 3
	roleIDs := map[string]int64{}
	spineRole, leafRole, serverRole := s.RoleSlugs()
	roleIDs[spineRole], roleIDs[leafRole], roleIDs[serverRole] = 1, 2, 3

	deviceIDs = map[string]int64{}
	for i, d := range s.Devices(1, typeIDs, roleIDs) {
		deviceIDs[d.Name] = int64(i + 1)
	}

	interfaceIDs = map[string]int64{}
	next := int64(1)
	for _, iface := range s.Interfaces(deviceIDs) {
		for name, id := range deviceIDs {
			if id == iface.DeviceID {
				interfaceIDs[name+":"+iface.Name] = next
				next++
				break
			}
		}
	}
	return deviceIDs, interfaceIDs
}

func TestSpec_Devices(t *testing.T) {
	s := smallSpec()
	typeIDs := map[string]int64{}
	spineType, leafType, serverType := s.TypeSlugs()
	typeIDs[spineType], typeIDs[leafType], typeIDs[serverType] = 10, 20, 30
	roleIDs := map[string]int64{}
	spineRole, leafRole, serverRole := s.RoleSlugs()
	roleIDs[spineRole], roleIDs[leafRole], roleIDs[serverRole] = 11, 21, 31

	devices := s.Devices(7, typeIDs, roleIDs)
	if len(devices) != s.TotalDevices() {
		t.Fatalf("devices: got %d, want %d", len(devices), s.TotalDevices())
	}

	// Tier order: spines, then leaves, then servers.
	if devices[0].Name != "lab-spine-p00-s00" || devices[0].DeviceTypeID != 10 || devices[0].RoleID != 11 {
		t.Errorf("first spine: got %+v", devices[0])
	}
	if devices[2].Name != "lab-leaf-p00-r00" || devices[2].DeviceTypeID != 20 {
		t.Errorf("first leaf: got %+v", devices[2])
	}
	if devices[3].Name != "lab-srv-p00-r00-u00" || devices[3].RoleID != 31 {
		t.Errorf("first server: got %+v", devices[3])
	}
	for _, d := range devices {
		if d.SiteID != 7 {
			t.Errorf("device %s: site ID %d, want 7", d.Name, d.SiteID)
		}
		if d.Status != "active" {
			t.Errorf("device %s: status %q", d.Name, d.Status)
		}
		if d.Serial == "" {
			t.Errorf("device %s: empty serial", d.Name)
		}
	}
}

func TestSpec_Interfaces(t *testing.T) {
	s := smallSpec()
	deviceIDs, _ := fakeIDs(s)

	interfaces := s.Interfaces(deviceIDs)
	want := s.TotalSpines()*s.SpinePorts + s.TotalLeaves()*s.LeafPorts + s.TotalServers()*s.NICsPerServer
	if len(interfaces) != want {
		t.Fatalf("interfaces: got %d, want %d", len(interfaces), want)
	}

	byDevice := map[int64][]Interface{}
	for _, iface := range interfaces {
		byDevice[iface.DeviceID] = append(byDevice[iface.DeviceID], iface)
	}

	leafID := deviceIDs["lab-leaf-p00-r00"]
	leafPorts := byDevice[leafID]
	if len(leafPorts) != s.LeafPorts {
		t.Fatalf("leaf ports: got %d, want %d", len(leafPorts), s.LeafPorts)
	}
	// Ports are 1-based and sequential; descriptions flip from uplink to
	// downlink after LeafUplinks.
	for i, iface := range leafPorts {
		wantName := fmt.Sprintf("eth%d", i+1)
		if iface.Name != wantName {
			t.Errorf("leaf port %d: name %q, want %q", i, iface.Name, wantName)
		}
		if i < s.LeafUplinks() && !strings.HasPrefix(iface.Description, "Uplink") {
			t.Errorf("port %s: %q should be an uplink", iface.Name, iface.Description)
		}
		if i >= s.LeafUplinks() && !strings.HasPrefix(iface.Description, "Downlink") {
			t.Errorf("port %s: %q should be a downlink", iface.Name, iface.Description)
		}
	}

	serverID := deviceIDs["lab-srv-p00-r00-u01"]
	if got := len(byDevice[serverID]); got != s.NICsPerServer {
		t.Errorf("server NICs: got %d, want %d", got, s.NICsPerServer)
	}
}

func TestSpec_Interfaces_SkipsUnknownDevices(t *testing.T) {
	s := smallSpec()
	deviceIDs, _ := fakeIDs(s)
	delete(deviceIDs, "lab-spine-p00-s01")

	interfaces := s.Interfaces(deviceIDs)
	want := (s.TotalSpines()-1)*s.SpinePorts + s.TotalLeaves()*s.LeafPorts + s.TotalServers()*s.NICsPerServer
	if len(interfaces) != want {
		t.Errorf("interfaces: got %d, want %d", len(interfaces), want)
	}
}

func TestSpec_Cables_CountMatchesEstimate(t *testing.T) {
	s := smallSpec()
	_, interfaceIDs := fakeIDs(s)

	cables, terminations := s.Cables(interfaceIDs, 99)
	if len(cables) != s.EstimatedCables() {
		t.Errorf("cables: got %d, want %d", len(cables), s.EstimatedCables())
	}
	if len(terminations) != 2*len(cables) {
		t.Errorf("terminations: got %d, want %d", len(terminations), 2*len(cables))
	}
}

func TestSpec_Cables_LabelsAreSequentialAndUnique(t *testing.T) {
	s := smallSpec()
	_, interfaceIDs := fakeIDs(s)

	cables, _ := s.Cables(interfaceIDs, 99)

	seen := map[string]bool{}
	for _, c := range cables {
		if seen[c.Label] {
			t.Errorf("duplicate label %q", c.Label)
		}
		seen[c.Label] = true
	}

	// One running index across both segments: fabric labels first, server
	// labels continue the sequence.
	if cables[0].Label != "lab-fab-000000" {
		t.Errorf("first fabric label: got %q", cables[0].Label)
	}
	if cables[3].Label != "lab-fab-000003" {
		t.Errorf("last fabric label: got %q", cables[3].Label)
	}
	if cables[4].Label != "lab-srv-000004" {
		t.Errorf("first server label: got %q", cables[4].Label)
	}
	if cables[5].Label != "lab-srv-000005" {
		t.Errorf("last server label: got %q", cables[5].Label)
	}
}

func TestSpec_Cables_SpinePortAssignment(t *testing.T) {
	s := smallSpec()
	_, interfaceIDs := fakeIDs(s)

	_, terminations := s.Cables(interfaceIDs, 99)

	byLabel := map[string]map[string]int64{}
	for _, term := range terminations {
		if byLabel[term.CableLabel] == nil {
			byLabel[term.CableLabel] = map[string]int64{}
		}
		byLabel[term.CableLabel][term.End] = term.TerminationID
	}

	// Leaf 0 connects twice to each spine: uplink ports eth1..eth4 on the
	// leaf, and spine ports (0*2+r)%8+1 = eth1/eth2 on each spine.
	checks := []struct {
		label     string
		leafPort  int
		spine     string
		spinePort int
	}{
		{"lab-fab-000000", 1, "lab-spine-p00-s00", 1},
		{"lab-fab-000001", 2, "lab-spine-p00-s00", 2},
		{"lab-fab-000002", 3, "lab-spine-p00-s01", 1},
		{"lab-fab-000003", 4, "lab-spine-p00-s01", 2},
	}
	for _, c := range checks {
		ends := byLabel[c.label]
		if len(ends) != 2 {
			t.Fatalf("cable %s: got %d ends, want 2", c.label, len(ends))
		}
		wantA := interfaceIDs[InterfaceKey("lab-leaf-p00-r00", c.leafPort)]
		wantB := interfaceIDs[InterfaceKey(c.spine, c.spinePort)]
		if ends["A"] != wantA {
			t.Errorf("cable %s end A: got interface %d, want %d (leaf eth%d)", c.label, ends["A"], wantA, c.leafPort)
		}
		if ends["B"] != wantB {
			t.Errorf("cable %s end B: got interface %d, want %d (%s eth%d)", c.label, ends["B"], wantB, c.spine, c.spinePort)
		}
		if ends["A"] == ends["B"] {
			t.Errorf("cable %s: both ends terminate on the same interface", c.label)
		}
	}
}

func TestSpec_Cables_ServerDownlinks(t *testing.T) {
	s := smallSpec()
	_, interfaceIDs := fakeIDs(s)

	_, terminations := s.Cables(interfaceIDs, 99)

	byLabel := map[string]map[string]int64{}
	for _, term := range terminations {
		if byLabel[term.CableLabel] == nil {
			byLabel[term.CableLabel] = map[string]int64{}
		}
		byLabel[term.CableLabel][term.End] = term.TerminationID
	}

	// Downlinks start right after the uplink range: eth5 to server 0 nic 1,
	// eth6 to server 1 nic 1.
	first := byLabel["lab-srv-000004"]
	if first["A"] != interfaceIDs[InterfaceKey("lab-leaf-p00-r00", 5)] {
		t.Errorf("first downlink leaf end: got %d", first["A"])
	}
	if first["B"] != interfaceIDs[InterfaceKey("lab-srv-p00-r00-u00", 1)] {
		t.Errorf("first downlink server end: got %d", first["B"])
	}
	second := byLabel["lab-srv-000005"]
	if second["A"] != interfaceIDs[InterfaceKey("lab-leaf-p00-r00", 6)] {
		t.Errorf("second downlink leaf end: got %d", second["A"])
	}
	if second["B"] != interfaceIDs[InterfaceKey("lab-srv-p00-r00-u01", 1)] {
		t.Errorf("second downlink server end: got %d", second["B"])
	}
}

func TestSpec_Cables_SkipsPairsWithMissingInterfaces(t *testing.T) {
	s := smallSpec()
	_, interfaceIDs := fakeIDs(s)
	delete(interfaceIDs, InterfaceKey("lab-spine-p00-s00", 1))

	cables, terminations := s.Cables(interfaceIDs, 99)
	// The cable is still generated; only its termination pair is skipped.
	if len(cables) != s.EstimatedCables() {
		t.Errorf("cables: got %d, want %d", len(cables), s.EstimatedCables())
	}
	if len(terminations) != 2*s.EstimatedCables()-2 {
		t.Errorf("terminations: got %d, want %d", len(terminations), 2*s.EstimatedCables()-2)
	}
	for _, term := range terminations {
		if term.CableLabel == "lab-fab-000000" {
			t.Errorf("cable with missing endpoint should have no terminations, got %+v", term)
		}
	}
}

func TestSpec_Cables_OversubscribedDownlinksSkipTerminations(t *testing.T) {
	// 3 servers x 2 NICs want downlink ports 5..10 on an 8-port leaf. The
	// cables for ports 9 and 10 are still generated, but no leaf interface
	// exists there, so their termination pairs are skipped.
	s := smallSpec()
	s.ServersPerLeaf = 3
	s.NICsPerServer = 2
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	_, interfaceIDs := fakeIDs(s)

	cables, terminations := s.Cables(interfaceIDs, 99)
	if len(cables) != s.EstimatedCables() {
		t.Errorf("cables: got %d, want %d", len(cables), s.EstimatedCables())
	}
	if want := 2*s.EstimatedCables() - 4; len(terminations) != want {
		t.Errorf("terminations: got %d, want %d", len(terminations), want)
	}

	terminated := map[string]bool{}
	for _, term := range terminations {
		terminated[term.CableLabel] = true
	}
	// The last two server cables are the ones past the port range.
	for _, label := range []string{"lab-srv-000008", "lab-srv-000009"} {
		if terminated[label] {
			t.Errorf("cable %s lands past the leaf port range and should have no terminations", label)
		}
	}
	for _, label := range []string{"lab-srv-000004", "lab-srv-000007"} {
		if !terminated[label] {
			t.Errorf("cable %s is within the leaf port range and should be terminated", label)
		}
	}
}

func TestSpec_Generation_IsDeterministic(t *testing.T) {
	s := smallSpec()
	deviceIDs, interfaceIDs := fakeIDs(s)

	devA := s.Devices(1, map[string]int64{}, map[string]int64{})
	devB := s.Devices(1, map[string]int64{}, map[string]int64{})
	if !reflect.DeepEqual(devA, devB) {
		t.Error("device generation is not deterministic")
	}

	ifaceA := s.Interfaces(deviceIDs)
	ifaceB := s.Interfaces(deviceIDs)
	if !reflect.DeepEqual(ifaceA, ifaceB) {
		t.Error("interface generation is not deterministic")
	}

	cablesA, termsA := s.Cables(interfaceIDs, 99)
	cablesB, termsB := s.Cables(interfaceIDs, 99)
	if !reflect.DeepEqual(cablesA, cablesB) || !reflect.DeepEqual(termsA, termsB) {
		t.Error("cable generation is not deterministic")
	}
}
