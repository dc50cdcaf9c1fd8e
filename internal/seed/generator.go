package seed

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"order-saga-client/internal/api"
	"order-saga-client/internal/config"
	"order-saga-client/internal/idempotency"
	"order-saga-client/internal/sandbox"
)

type product struct {
	name  string
	price string
}

var catalog = []product{
	{"Mechanical keyboard", "349.90"},
	{"Wireless mouse", "89.90"},
	{"27in monitor", "1299.00"},
	{"USB-C cable", "19.99"},
	{"Laptop stand", "149.50"},
	{"Noise cancelling headset", "599.00"},
	{"Webcam", "249.90"},
}

var customers = []string{
	"Ada Lovelace",
	"Grace Hopper",
	"Katherine Johnson",
	"Margaret Hamilton",
	"Radia Perlman",
	"Barbara Liskov",
}

// Generator builds synthetic create-order requests
type Generator struct {
	cfg config.SeedConfig
	rng *rand.Rand
}

// NewGenerator creates a generator. The same seed yields the same orders,
// apart from idempotency keys which are always fresh.
func NewGenerator(cfg config.SeedConfig, seed int64) *Generator {
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// GenerateAll pre-generates every request. Declined and async payment
// methods are assigned by ratio, then the requests are shuffled.
func (g *Generator) GenerateAll() []api.CreateOrderRequest {
	total := g.cfg.TotalOrders
	declined := int(math.Round(float64(total) * g.cfg.DeclinedRatio))
	async := min(int(math.Round(float64(total)*g.cfg.AsyncRatio)), total-declined)

	reqs := make([]api.CreateOrderRequest, 0, total)
	for i := 0; i < total; i++ {
		method := g.cfg.PaymentMethod
		switch {
		case i < declined:
			method = sandbox.MethodDeclined
		case i < declined+async:
			method = sandbox.MethodAsync
		}
		reqs = append(reqs, g.generate(method))
	}

	g.rng.Shuffle(len(reqs), func(i, j int) {
		reqs[i], reqs[j] = reqs[j], reqs[i]
	})
	return reqs
}

func (g *Generator) generate(method string) api.CreateOrderRequest {
	name := customers[g.rng.Intn(len(customers))]
	email := strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com"

	count := 1 + g.rng.Intn(3)
	picked := g.rng.Perm(len(catalog))[:count]
	items := make([]api.OrderItemRequest, 0, count)
	for _, idx := range picked {
		p := catalog[idx]
		items = append(items, api.OrderItemRequest{
			ProductID:   stableID("product", p.name),
			ProductName: p.name,
			Quantity:    1 + g.rng.Intn(3),
			UnitPrice:   decimal.RequireFromString(p.price),
		})
	}

	return api.CreateOrderRequest{
		CustomerID:     stableID("customer", email),
		CustomerName:   name,
		CustomerEmail:  email,
		Items:          items,
		PaymentMethod:  method,
		IdempotencyKey: idempotency.Generate(),
	}
}

func stableID(kind, name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("urn:%s:%s", kind, name))).String()
}
