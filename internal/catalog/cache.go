package catalog

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/tmarchand/order-enrichment/internal/domain"
)

// cache is the read-through, process-local store backing Client.
// Negative results (NotFound, Upstream, Unavailable) are never cached —
// only a successful Customer/Product value occupies a slot.
type cache struct {
	customers *expirable.LRU[string, domain.Customer]
	products  *expirable.LRU[string, domain.Product]
}

func newCache(customerTTL, productTTL time.Duration) *cache {
	return &cache{
		customers: expirable.NewLRU[string, domain.Customer](2048, nil, customerTTL),
		products:  expirable.NewLRU[string, domain.Product](4096, nil, productTTL),
	}
}

func (c *cache) getCustomer(id string) (domain.Customer, bool) {
	return c.customers.Get(id)
}

func (c *cache) putCustomer(id string, v domain.Customer) {
	c.customers.Add(id, v)
}

func (c *cache) getProduct(id string) (domain.Product, bool) {
	return c.products.Get(id)
}

func (c *cache) putProduct(id string, v domain.Product) {
	c.products.Add(id, v)
}
