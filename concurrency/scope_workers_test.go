package concurrency_test

import (
	"context"
	"quantiles/concurrency"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Scope Workers", func() {
	It("processes all messages before close returns", func() {
		scopes := concurrency.NewScopes(
			concurrency.GenerateScopeIds("worker", 4),
			func() *countingScope {
				return &countingScope{}
			})
		workers := concurrency.NewScopeWorkers(
			scopes,
			func(id string, _ *countingScope) *string {
				return &id
			},
			func(_ context.Context, _ string, scope *countingScope, _ *string, message *int) {
				scope.sum += *message
			},
			10)

		for i := 1; i <= 100; i++ {
			value := i
			workers.Execute(&value)
		}
		workers.Close()

		sum := 0
		for _, scope := range scopes.ForEachScope() {
			sum += scope.Value.sum
		}
		Expect(sum).To(Equal(5050))
	})

	It("refuses messages over a full queue without blocking", func() {
		gate := make(chan struct{})
		taken := make(chan int, 3)
		workers := concurrency.NewScopeWorkers(
			concurrency.NewScopes([]string{"only"}, func() *countingScope { return &countingScope{} }),
			func(id string, _ *countingScope) *string {
				return &id
			},
			func(_ context.Context, _ string, _ *countingScope, _ *string, message *int) {
				taken <- *message
				<-gate
			},
			1)

		first, second, third := 1, 2, 3
		workers.Execute(&first)
		workers.Execute(&second)
		Expect(workers.TryExecute(&third)).To(BeFalse())

		close(gate)
		workers.Close()
		Expect(len(taken)).To(Equal(2))
	})

	It("names generated scopes by prefix", func() {
		Expect(concurrency.GenerateScopeIds("shard", 3)).To(Equal([]string{"shard-0", "shard-1", "shard-2"}))
		Expect(concurrency.GenerateScopeIds("shard", 0)).To(BeEmpty())
	})

	It("keeps scopes in naming order without duplicates", func() {
		created := 0
		scopes := concurrency.NewScopes([]string{"b", "a", "b", "c"}, func() *countingScope {
			created++
			return &countingScope{sum: created}
		})
		Expect(scopes.Len()).To(Equal(3))
		Expect(created).To(Equal(3))

		var names []string
		for name, scope := range scopes.ForEachScope() {
			Expect(scope.Name()).To(Equal(name))
			names = append(names, name)
		}
		Expect(names).To(Equal([]string{"b", "a", "c"}))

		scope, found := scopes.Get("a")
		Expect(found).To(BeTrue())
		Expect(scope.Value.sum).To(Equal(2))
		_, found = scopes.Get("d")
		Expect(found).To(BeFalse())
	})
})

type countingScope struct {
	sum int
}
