package topology

import "fmt"

// DeviceType is a hardware model definition loaded once per fabric.
type DeviceType struct {
	ManufacturerID int64  `json:"manufacturer_id" parquet:"manufacturer_id"`
	Model          string `json:"model" parquet:"model"`
	Slug           string `json:"slug" parquet:"slug"`
	UHeight        int32  `json:"u_height" parquet:"u_height"`
}

// DeviceRole is a role definition loaded once per fabric.
type DeviceRole struct {
	Name  string `json:"name" parquet:"name"`
	Slug  string `json:"slug" parquet:"slug"`
	Color string `json:"color" parquet:"color"`
}

// Device is one generated fabric device. Name is the natural key used to
// join against server-assigned IDs after loading.
type Device struct {
	Name         string `json:"name" parquet:"name"`
	DeviceTypeID int64  `json:"device_type_id" parquet:"device_type_id"`
	RoleID       int64  `json:"role_id" parquet:"role_id"`
	SiteID       int64  `json:"site_id" parquet:"site_id"`
	Status       string `json:"status" parquet:"status"`
	Serial       string `json:"serial" parquet:"serial"`
}

// Interface is one generated port record. (device, name) is the natural key.
type Interface struct {
	DeviceID    int64  `json:"device_id" parquet:"device_id"`
	Name        string `json:"name" parquet:"name"`
	Type        string `json:"type" parquet:"type"`
	Enabled     bool   `json:"enabled" parquet:"enabled"`
	Description string `json:"description" parquet:"description"`
}

// Cable is one generated cable. Label is unique within a generation run and
// is the symbolic key terminations are staged against.
type Cable struct {
	Type   string `json:"type" parquet:"type"`
	Status string `json:"status" parquet:"status"`
	Label  string `json:"label" parquet:"label"`
	Color  string `json:"color" parquet:"color"`
}

// StagedTermination references its cable by label because the cable's
// server-assigned ID does not exist until the cables are committed. Bind
// rewrites the label to the numeric ID.
type StagedTermination struct {
	CableLabel        string
	End               string // "A" or "B"
	TerminationTypeID int64
	TerminationID     int64
}

// Cable colors by segment.
const (
	fabricCableColor = "00ff00"
	serverCableColor = "0000ff"
)

// TypeSlugs returns the device type slugs in tier order.
func (s Spec) TypeSlugs() (spine, leaf, server string) {
	spine = fmt.Sprintf("%s-spine-%dx400g", s.Prefix, s.SpinePorts)
	leaf = fmt.Sprintf("%s-leaf-%dx400g", s.Prefix, s.LeafPorts)
	server = fmt.Sprintf("%s-srv-%dx400g", s.Prefix, s.NICsPerServer)
	return
}

// RoleSlugs returns the device role slugs in tier order.
func (s Spec) RoleSlugs() (spine, leaf, server string) {
	return s.Prefix + "-spine", s.Prefix + "-leaf", s.Prefix + "-server"
}

// DeviceTypes returns the three device type definitions for this fabric.
func (s Spec) DeviceTypes(manufacturerID int64) []DeviceType {
	spineSlug, leafSlug, serverSlug := s.TypeSlugs()
	return []DeviceType{
		{ManufacturerID: manufacturerID, Model: fmt.Sprintf("Spine-%dx400G", s.SpinePorts), Slug: spineSlug, UHeight: 2},
		{ManufacturerID: manufacturerID, Model: fmt.Sprintf("Leaf-%dx400G", s.LeafPorts), Slug: leafSlug, UHeight: 1},
		{ManufacturerID: manufacturerID, Model: fmt.Sprintf("Server-%dx400G", s.NICsPerServer), Slug: serverSlug, UHeight: 6},
	}
}

// DeviceRoles returns the three role definitions for this fabric.
func (s Spec) DeviceRoles() []DeviceRole {
	spineSlug, leafSlug, serverSlug := s.RoleSlugs()
	return []DeviceRole{
		{Name: spineSlug, Slug: spineSlug, Color: "ff0000"},
		{Name: leafSlug, Slug: leafSlug, Color: "00ff00"},
		{Name: serverSlug, Slug: serverSlug, Color: "0000ff"},
	}
}

// Devices enumerates every fabric device tier by tier, pod by pod. typeIDs
// and roleIDs map type and role slugs to server-assigned IDs.
func (s Spec) Devices(siteID int64, typeIDs, roleIDs map[string]int64) []Device {
	spineType, leafType, serverType := s.TypeSlugs()
	spineRole, leafRole, serverRole := s.RoleSlugs()

	devices := make([]Device, 0, s.TotalDevices())

	for pod := 0; pod < s.Pods; pod++ {
		for su := 0; su < s.SpinesPerPod; su++ {
			devices = append(devices, Device{
				Name:         s.SpineName(pod, su),
				DeviceTypeID: typeIDs[spineType],
				RoleID:       roleIDs[spineRole],
				SiteID:       siteID,
				Status:       "active",
				Serial:       fmt.Sprintf("SPN-%02d%02d", pod, su),
			})
		}
	}

	for pod := 0; pod < s.Pods; pod++ {
		for lu := 0; lu < s.LeavesPerPod; lu++ {
			devices = append(devices, Device{
				Name:         s.LeafName(pod, lu),
				DeviceTypeID: typeIDs[leafType],
				RoleID:       roleIDs[leafRole],
				SiteID:       siteID,
				Status:       "active",
				Serial:       fmt.Sprintf("LF-%02d%02d", pod, lu),
			})
		}
	}

	serverNum := 0
	for pod := 0; pod < s.Pods; pod++ {
		for lu := 0; lu < s.LeavesPerPod; lu++ {
			for su := 0; su < s.ServersPerLeaf; su++ {
				devices = append(devices, Device{
					Name:         s.ServerName(pod, lu, su),
					DeviceTypeID: typeIDs[serverType],
					RoleID:       roleIDs[serverRole],
					SiteID:       siteID,
					Status:       "active",
					Serial:       fmt.Sprintf("SRV-%06d", serverNum),
				})
				serverNum++
			}
		}
	}

	return devices
}

// Interfaces enumerates every port of every device in the same order devices
// were generated. deviceIDs maps device names to server-assigned IDs;
// devices absent from the map are skipped.
func (s Spec) Interfaces(deviceIDs map[string]int64) []Interface {
	var interfaces []Interface

	for pod := 0; pod < s.Pods; pod++ {
		for su := 0; su < s.SpinesPerPod; su++ {
			id, ok := deviceIDs[s.SpineName(pod, su)]
			if !ok {
				continue
			}
			for port := 1; port <= s.SpinePorts; port++ {
				interfaces = append(interfaces, Interface{
					DeviceID:    id,
					Name:        fmt.Sprintf("eth%d", port),
					Type:        s.SpineInterfaceType,
					Enabled:     true,
					Description: fmt.Sprintf("Spine port %d", port),
				})
			}
		}
	}

	for pod := 0; pod < s.Pods; pod++ {
		for lu := 0; lu < s.LeavesPerPod; lu++ {
			id, ok := deviceIDs[s.LeafName(pod, lu)]
			if !ok {
				continue
			}
			for port := 1; port <= s.LeafPorts; port++ {
				desc := fmt.Sprintf("Uplink to spine %d", port)
				if port > s.LeafUplinks() {
					desc = fmt.Sprintf("Downlink to server %d", port-s.LeafUplinks())
				}
				interfaces = append(interfaces, Interface{
					DeviceID:    id,
					Name:        fmt.Sprintf("eth%d", port),
					Type:        s.LeafInterfaceType,
					Enabled:     true,
					Description: desc,
				})
			}
		}
	}

	for pod := 0; pod < s.Pods; pod++ {
		for lu := 0; lu < s.LeavesPerPod; lu++ {
			for su := 0; su < s.ServersPerLeaf; su++ {
				id, ok := deviceIDs[s.ServerName(pod, lu, su)]
				if !ok {
					continue
				}
				for nic := 1; nic <= s.NICsPerServer; nic++ {
					interfaces = append(interfaces, Interface{
						DeviceID:    id,
						Name:        fmt.Sprintf("eth%d", nic),
						Type:        s.ServerInterfaceType,
						Enabled:     true,
						Description: fmt.Sprintf("Fabric NIC %d", nic),
					})
				}
			}
		}
	}

	return interfaces
}

// Cables generates the full cable set with staged terminations.
//
// Spine-to-leaf: each leaf takes sequential uplink ports starting at eth1 and
// connects twice to every spine in its pod. The spine-side port is
// (leafIndex*2 + redundancy) % SpinePorts + 1, a round-robin that spreads
// leaves across spine ports.
//
// Leaf-to-server: downlink ports continue sequentially after the uplink
// range, one cable per (port, server NIC) pair in generation order.
//
// interfaceIDs maps InterfaceKey values to server-assigned interface IDs;
// cables whose endpoints are absent from the map are staged without
// terminations being possible, so such pairs are skipped entirely on the
// termination side. interfaceTypeID is the content-type ID for interfaces.
func (s Spec) Cables(interfaceIDs map[string]int64, interfaceTypeID int64) ([]Cable, []StagedTermination) {
	cables := make([]Cable, 0, s.EstimatedCables())
	terminations := make([]StagedTermination, 0, 2*s.EstimatedCables())

	addTerminations := func(label, aKey, bKey string) {
		aID, aOK := interfaceIDs[aKey]
		bID, bOK := interfaceIDs[bKey]
		if !aOK || !bOK {
			return
		}
		terminations = append(terminations,
			StagedTermination{CableLabel: label, End: "A", TerminationTypeID: interfaceTypeID, TerminationID: aID},
			StagedTermination{CableLabel: label, End: "B", TerminationTypeID: interfaceTypeID, TerminationID: bID},
		)
	}

	cableIdx := 0

	for pod := 0; pod < s.Pods; pod++ {
		for lu := 0; lu < s.LeavesPerPod; lu++ {
			leafName := s.LeafName(pod, lu)
			uplinkPort := 1

			for su := 0; su < s.SpinesPerPod; su++ {
				spineName := s.SpineName(pod, su)

				for redundant := 0; redundant < 2; redundant++ {
					leafKey := InterfaceKey(leafName, uplinkPort)
					spinePort := (lu*2+redundant)%s.SpinePorts + 1
					spineKey := InterfaceKey(spineName, spinePort)

					label := fmt.Sprintf("%s-fab-%06d", s.Prefix, cableIdx)
					cables = append(cables, Cable{
						Type:   s.CableType,
						Status: s.CableStatus,
						Label:  label,
						Color:  fabricCableColor,
					})
					addTerminations(label, leafKey, spineKey)
					cableIdx++
					uplinkPort++
				}
			}
		}
	}

	for pod := 0; pod < s.Pods; pod++ {
		for lu := 0; lu < s.LeavesPerPod; lu++ {
			leafName := s.LeafName(pod, lu)
			downlinkPort := s.LeafUplinks() + 1

			for su := 0; su < s.ServersPerLeaf; su++ {
				serverName := s.ServerName(pod, lu, su)

				for nic := 1; nic <= s.NICsPerServer; nic++ {
					leafKey := InterfaceKey(leafName, downlinkPort)
					serverKey := InterfaceKey(serverName, nic)

					label := fmt.Sprintf("%s-srv-%06d", s.Prefix, cableIdx)
					cables = append(cables, Cable{
						Type:   s.CableType,
						Status: s.CableStatus,
						Label:  label,
						Color:  serverCableColor,
					})
					addTerminations(label, leafKey, serverKey)
					cableIdx++
					downlinkPort++
				}
			}
		}
	}

	return cables, terminations
}
