package models

// Types describing one point-in-time view of a VPC's routing state, as
// returned by the cloud connector. A snapshot is fetched fresh at the
// start of every reconciliation pass and discarded afterwards: other
// tooling may mutate the route tables between passes, so nothing here is
// ever cached.

type Zone struct {
	Name  string
	State string
}

type Subnet struct {
	ID   string
	CIDR string
}

type NetworkInterface struct {
	ID        string
	PrivateIP string
}

type Instance struct {
	ID         string
	Interfaces []NetworkInterface
}

// Route is one entry of a route table. InstanceID and InterfaceID are
// empty for routes that are not attached to an instance (local routes,
// internet gateways, ...); those are externally owned and never touched.
type Route struct {
	DestinationCIDR string
	InstanceID      string
	InterfaceID     string
}

func (r Route) AttachedToInstance() bool {
	return r.InstanceID != ""
}

type RouteTable struct {
	ID     string
	Routes []Route
}

type VPCSnapshot struct {
	VPCID       string
	Zones       []Zone
	Subnets     []Subnet
	RouteTables []RouteTable
	Instances   []Instance
}

// RouteTarget is the instance/interface pair a route can point at.
type RouteTarget struct {
	InstanceID  string
	InterfaceID string
	PrivateIP   string
}

// TargetByIP indexes the snapshot's instances by interface private IP for
// candidate lookup during reconciliation.
func (s *VPCSnapshot) TargetByIP() map[string]RouteTarget {
	byIP := make(map[string]RouteTarget)
	for _, inst := range s.Instances {
		for _, iface := range inst.Interfaces {
			byIP[iface.PrivateIP] = RouteTarget{
				InstanceID:  inst.ID,
				InterfaceID: iface.ID,
				PrivateIP:   iface.PrivateIP,
			}
		}
	}
	return byIP
}

// RouteIP resolves the private IP a route currently points at, by
// matching the route's interface against the owning instance. Returns ""
// when the instance or interface is not part of the snapshot.
func (s *VPCSnapshot) RouteIP(r Route) string {
	for _, inst := range s.Instances {
		if inst.ID != r.InstanceID {
			continue
		}
		for _, iface := range inst.Interfaces {
			if iface.ID == r.InterfaceID {
				return iface.PrivateIP
			}
		}
	}
	return ""
}
