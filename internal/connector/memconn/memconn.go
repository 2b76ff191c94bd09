// Package memconn is an in-memory cloud connector. It backs the engine
// and coordinator tests and doubles as a dry-run backend: mutations are
// applied to a private copy of the route tables and counted.
package memconn

import (
	"context"
	"fmt"
	"sync"

	"github.com/vpcrouter/vpcrouter/internal/models"
)

type Connector struct {
	mu         sync.Mutex
	vpcID      string
	zones      []models.Zone
	subnets    []models.Subnet
	tableOrder []string
	tables     map[string]map[string]models.Route
	instances  []models.Instance

	creates  int
	replaces int
	deletes  int

	listErr error
}

func New(vpcID string) *Connector {
	return &Connector{
		vpcID:  vpcID,
		zones:  []models.Zone{{Name: "zone-a", State: "available"}},
		tables: make(map[string]map[string]models.Route),
	}
}

// SetListError makes every read operation fail with err until cleared,
// simulating an unreachable cloud API.
func (c *Connector) SetListError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listErr = err
}

func (c *Connector) AddRouteTable(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tables[id]; ok {
		return
	}
	c.tableOrder = append(c.tableOrder, id)
	c.tables[id] = make(map[string]models.Route)
}

func (c *Connector) AddInstance(inst models.Instance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instances = append(c.instances, inst)
}

func (c *Connector) AddSubnet(sub models.Subnet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subnets = append(c.subnets, sub)
}

// SeedRoute places a route directly into a table, bypassing the
// connector's duplicate checks. Used to model pre-existing state.
func (c *Connector) SeedRoute(tableID string, route models.Route) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[tableID][route.DestinationCIDR] = route
}

func (c *Connector) Route(tableID, cidr string) (models.Route, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	route, ok := c.tables[tableID][cidr]
	return route, ok
}

// MutationCounts reports (creates, replaces, deletes) since the last reset.
func (c *Connector) MutationCounts() (int, int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creates, c.replaces, c.deletes
}

func (c *Connector) ResetCounts() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creates, c.replaces, c.deletes = 0, 0, 0
}

func (c *Connector) ListZones(ctx context.Context) ([]models.Zone, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	return append([]models.Zone(nil), c.zones...), nil
}

func (c *Connector) ListVPCs(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	return []string{c.vpcID}, nil
}

func (c *Connector) ListSubnets(ctx context.Context, vpcID string) ([]models.Subnet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	return append([]models.Subnet(nil), c.subnets...), nil
}

func (c *Connector) ListRouteTables(ctx context.Context, vpcID string) ([]models.RouteTable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	tables := make([]models.RouteTable, 0, len(c.tableOrder))
	for _, id := range c.tableOrder {
		rt := models.RouteTable{ID: id}
		for _, route := range c.tables[id] {
			rt.Routes = append(rt.Routes, route)
		}
		tables = append(tables, rt)
	}
	return tables, nil
}

func (c *Connector) ListInstances(ctx context.Context, vpcID string) ([]models.Instance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	return append([]models.Instance(nil), c.instances...), nil
}

func (c *Connector) CreateRoute(ctx context.Context, tableID, cidr, instanceID, interfaceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	table, ok := c.tables[tableID]
	if !ok {
		return fmt.Errorf("route table %q not found", tableID)
	}
	if _, exists := table[cidr]; exists {
		return fmt.Errorf("route for %q already exists in table %q", cidr, tableID)
	}
	table[cidr] = models.Route{
		DestinationCIDR: cidr,
		InstanceID:      instanceID,
		InterfaceID:     interfaceID,
	}
	c.creates++
	return nil
}

func (c *Connector) ReplaceRoute(ctx context.Context, tableID, cidr, instanceID, interfaceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	table, ok := c.tables[tableID]
	if !ok {
		return fmt.Errorf("route table %q not found", tableID)
	}
	if _, exists := table[cidr]; !exists {
		return fmt.Errorf("no route for %q in table %q", cidr, tableID)
	}
	table[cidr] = models.Route{
		DestinationCIDR: cidr,
		InstanceID:      instanceID,
		InterfaceID:     interfaceID,
	}
	c.replaces++
	return nil
}

func (c *Connector) DeleteRoute(ctx context.Context, tableID, cidr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	table, ok := c.tables[tableID]
	if !ok {
		return fmt.Errorf("route table %q not found", tableID)
	}
	if _, exists := table[cidr]; !exists {
		return fmt.Errorf("no route for %q in table %q", cidr, tableID)
	}
	delete(table, cidr)
	c.deletes++
	return nil
}
