package vecstore_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/keyframeco/prism/pkg/logger"
	"github.com/keyframeco/prism/pkg/vecstore"
)

var _ = Describe("Policy", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	policy := func(attempts int) vecstore.Policy {
		return vecstore.Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond}
	}

	It("returns immediately on success", func() {
		calls := 0
		err := policy(3).Do(ctx, logger.Nop(), "op", func() error {
			calls++
			return nil
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(calls).To(Equal(1))
	})

	It("retries transient errors up to the attempt budget", func() {
		calls := 0
		transient := fmt.Errorf("%w: flaky", vecstore.ErrUnavailable)

		err := policy(3).Do(ctx, logger.Nop(), "op", func() error {
			calls++
			return transient
		})

		Expect(err).To(MatchError(vecstore.ErrUnavailable))
		Expect(calls).To(Equal(3))
	})

	It("stops retrying once an attempt succeeds", func() {
		calls := 0
		err := policy(3).Do(ctx, logger.Nop(), "op", func() error {
			calls++
			if calls < 2 {
				return fmt.Errorf("%w: flaky", vecstore.ErrUnavailable)
			}
			return nil
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(calls).To(Equal(2))
	})

	It("propagates permanent errors without another attempt", func() {
		calls := 0
		err := policy(3).Do(ctx, logger.Nop(), "op", func() error {
			calls++
			return fmt.Errorf("%w: bad dimension", vecstore.ErrInvalidArgument)
		})

		Expect(err).To(MatchError(vecstore.ErrInvalidArgument))
		Expect(calls).To(Equal(1))
	})

	It("doubles the delay between attempts", func() {
		p := vecstore.Policy{MaxAttempts: 3, BaseDelay: 20 * time.Millisecond}
		calls := 0
		start := time.Now()

		_ = p.Do(ctx, logger.Nop(), "op", func() error {
			calls++
			return fmt.Errorf("%w: flaky", vecstore.ErrUnavailable)
		})

		// Sleeps of 20ms then 40ms between the three attempts.
		Expect(calls).To(Equal(3))
		Expect(time.Since(start)).To(BeNumerically(">=", 60*time.Millisecond))
	})

	It("honors a custom classifier", func() {
		calls := 0
		p := vecstore.Policy{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			Classify:    func(error) bool { return false },
		}

		err := p.Do(ctx, logger.Nop(), "op", func() error {
			calls++
			return fmt.Errorf("%w: would normally retry", vecstore.ErrUnavailable)
		})

		Expect(err).To(HaveOccurred())
		Expect(calls).To(Equal(1))
	})

	It("returns the context error when canceled before an attempt", func() {
		canceled, cancel := context.WithCancel(ctx)
		cancel()

		calls := 0
		err := policy(3).Do(canceled, logger.Nop(), "op", func() error {
			calls++
			return nil
		})

		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		Expect(calls).To(BeZero())
	})

	It("runs at least once when MaxAttempts is zero-valued", func() {
		calls := 0
		err := vecstore.Policy{}.Do(ctx, logger.Nop(), "op", func() error {
			calls++
			return nil
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(calls).To(Equal(1))
	})
})

// timeoutErr implements net.Error's timeout reporting.
type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

var _ = Describe("IsTransient", func() {
	It("treats nil as not transient", func() {
		Expect(vecstore.IsTransient(nil)).To(BeFalse())
	})

	It("classifies the unavailability sentinel as transient", func() {
		err := fmt.Errorf("%w: database is locked", vecstore.ErrUnavailable)
		Expect(vecstore.IsTransient(err)).To(BeTrue())
	})

	It("classifies package sentinels as permanent", func() {
		for _, err := range []error{
			vecstore.ErrNotFound,
			vecstore.ErrInvalidArgument,
			vecstore.ErrDuplicateID,
			vecstore.ErrNotConnected,
		} {
			Expect(vecstore.IsTransient(err)).To(BeFalse(), err.Error())
		}
	})

	It("classifies retry-worthy gRPC codes as transient", func() {
		for _, code := range []codes.Code{
			codes.Unavailable,
			codes.DeadlineExceeded,
			codes.ResourceExhausted,
			codes.Aborted,
		} {
			err := status.Error(code, "store trouble")
			Expect(vecstore.IsTransient(err)).To(BeTrue(), code.String())
		}
	})

	It("classifies input and auth gRPC codes as permanent", func() {
		for _, code := range []codes.Code{
			codes.InvalidArgument,
			codes.NotFound,
			codes.AlreadyExists,
			codes.PermissionDenied,
			codes.Unauthenticated,
			codes.FailedPrecondition,
		} {
			err := status.Error(code, "rejected")
			Expect(vecstore.IsTransient(err)).To(BeFalse(), code.String())
		}
	})

	It("sees gRPC codes through error wrapping", func() {
		err := fmt.Errorf("querying points: %w", status.Error(codes.Unavailable, "connection refused"))
		Expect(vecstore.IsTransient(err)).To(BeTrue())
	})

	It("classifies network timeouts as transient", func() {
		err := fmt.Errorf("flushing: %w", timeoutErr{})
		Expect(vecstore.IsTransient(err)).To(BeTrue())
	})

	It("classifies deadline expiry as transient but cancellation as permanent", func() {
		Expect(vecstore.IsTransient(context.DeadlineExceeded)).To(BeTrue())
		Expect(vecstore.IsTransient(context.Canceled)).To(BeFalse())
	})

	It("defaults unknown errors to permanent", func() {
		Expect(vecstore.IsTransient(errors.New("some logic bug"))).To(BeFalse())
	})
})
