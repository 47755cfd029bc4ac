package executecmder

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/canvas/pkg/dispatch"
	"github.com/papercomputeco/canvas/pkg/execution"
)

// fakeService answers execute calls with fixed plans.
type fakeService struct {
	targets []string
}

func (f *fakeService) Submit(_ context.Context, req dispatch.Request) (*dispatch.Result, error) {
	f.targets = append(f.targets, req.Target)

	plan := execution.Plan{
		Order:   []string{"a", "b", "c"},
		Results: map[string]string{"a": "alpha", "b": "Error: boom", "c": "gamma"},
	}
	switch req.Target {
	case execution.NodeEndpoint("b"):
		plan = execution.Plan{Order: []string{"b"}, Results: map[string]string{"b": "beta"}}
	case execution.NodeEndpoint("ghost"):
		raw := []byte(`{"status":"error","message":"Node not found"}`)
		return &dispatch.Result{StatusCode: http.StatusOK, Raw: raw}, nil
	}

	raw, err := json.Marshal(map[string]any{"status": "success", "data": plan})
	if err != nil {
		return nil, err
	}
	return &dispatch.Result{StatusCode: http.StatusOK, Raw: raw}, nil
}

var _ = Describe("executeCommander", func() {
	var (
		ctx     context.Context
		out     *bytes.Buffer
		service *fakeService
		c       *executeCommander
	)

	BeforeEach(func() {
		ctx = context.Background()
		out = &bytes.Buffer{}
		service = &fakeService{}
		c = &executeCommander{
			out:      out,
			logger:   zap.NewNop(),
			executor: execution.NewExecutor(service, nil, nil),
		}
		Expect(c.execute(ctx, execution.KindWorkflow, "")).To(Succeed())
	})

	It("prints the timeline of the initial run", func() {
		Expect(service.targets).To(Equal([]string{execution.WorkflowEndpoint}))
		Expect(out.String()).To(ContainSubstring("Executing workflow"))
		Expect(out.String()).To(ContainSubstring("alpha"))
		Expect(out.String()).To(ContainSubstring("Error: boom"))
	})

	It("steps through the plan", func() {
		cursor := c.executor.Cursor()

		c.handleLine(ctx, "s")
		Expect(cursor.CurrentNode()).To(Equal("a"))

		c.handleLine(ctx, "n")
		c.handleLine(ctx, "n")
		c.handleLine(ctx, "n")
		Expect(cursor.CurrentNode()).To(Equal("c"))

		c.handleLine(ctx, "p")
		Expect(cursor.CurrentNode()).To(Equal("b"))

		c.handleLine(ctx, "j 1")
		Expect(cursor.CurrentNode()).To(Equal("a"))
		Expect(out.String()).To(ContainSubstring("step 1/3"))
	})

	It("rejects a bad jump", func() {
		c.handleLine(ctx, "j x")
		Expect(out.String()).To(ContainSubstring("usage: j <step number>"))
	})

	It("runs single nodes and replays history", func() {
		c.handleLine(ctx, "x b")
		Expect(service.targets).To(ContainElement(execution.NodeEndpoint("b")))
		Expect(c.executor.Cursor().Plan().Order).To(Equal([]string{"b"}))

		out.Reset()
		c.handleLine(ctx, "h")
		Expect(out.String()).To(ContainSubstring("1. workflow"))
		Expect(out.String()).To(ContainSubstring("2. node b"))

		c.handleLine(ctx, "r 1")
		Expect(c.executor.Cursor().State()).To(Equal(execution.StateStepping))
		Expect(c.executor.Cursor().Plan().Order).To(Equal([]string{"a", "b", "c"}))
		Expect(c.executor.Cursor().History()).To(HaveLen(2))
	})

	It("reports unknown history entries", func() {
		c.handleLine(ctx, "r 9")
		Expect(out.String()).To(ContainSubstring("no execution 9 in history"))

		c.handleLine(ctx, "r not-an-id")
		Expect(out.String()).To(ContainSubstring(execution.ErrHistoryNotFound.Error()))
	})

	It("reports failed executions without quitting", func() {
		Expect(c.handleLine(ctx, "x ghost")).To(BeFalse())
		Expect(out.String()).To(ContainSubstring("Node not found"))
		Expect(c.handleLine(ctx, "t")).To(BeFalse())
		Expect(out.String()).To(ContainSubstring("usage: path <node id>"))
	})

	It("resets and quits", func() {
		c.handleLine(ctx, "reset")
		Expect(c.executor.Cursor().State()).To(Equal(execution.StateEmpty))
		Expect(c.handleLine(ctx, "q")).To(BeTrue())
	})
})
