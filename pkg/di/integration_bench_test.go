//go:build cgo

package di

import (
	"context"
	"testing"

	"github.com/goliatone/go-barangay-registry/registry"
)

func BenchmarkContainer_GetResident(b *testing.B) {
	c := newTestContainer(b, baseConfig(b))
	ctx := context.Background()
	created := c.Residents().CreateResident(ctx, sampleResident())
	if !created.Success {
		b.Fatalf("CreateResident() = %v", created.Error)
	}
	id := created.Data.ID.String()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if res := c.Residents().GetResident(ctx, id); !res.Success {
			b.Fatal(res.Error)
		}
	}
}

func BenchmarkContainer_SearchResidents(b *testing.B) {
	c := newTestContainer(b, baseConfig(b))
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		if res := c.Residents().CreateResident(ctx, sampleResident()); !res.Success {
			b.Fatal(res.Error)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res := c.Residents().SearchResidents(ctx, registry.ResidentSearch{Jurisdiction: "137404000", Limit: 20})
		if !res.Success {
			b.Fatal(res.Error)
		}
	}
}
