package flatsys_test

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/flattraj/internal/control"
	"github.com/san-kum/flattraj/internal/dynamo"
	"github.com/san-kum/flattraj/internal/flatsys"
	"github.com/san-kum/flattraj/internal/integrators"
	"github.com/san-kum/flattraj/internal/physics"
)

var _ = Describe("PointToPoint", func() {
	Context("with x' = u and a cubic polynomial basis", func() {
		var traj *flatsys.SystemTrajectory

		BeforeEach(func() {
			sys, err := flatsys.NewFuncSystem(1, 1, []int{2},
				func(x, u []float64) (flatsys.Flag, error) { return flatsys.Flag{{x[0], u[0]}}, nil },
				func(f flatsys.Flag) ([]float64, []float64, error) {
					return []float64{f[0][0]}, []float64{f[0][1]}, nil
				})
			Expect(err).NotTo(HaveOccurred())
			basis, err := flatsys.NewPolyFamily(4, 1)
			Expect(err).NotTo(HaveOccurred())

			traj, err = flatsys.PointToPoint(sys, basis, 0, 1,
				flatsys.Endpoint{X: []float64{0}, U: []float64{0}},
				flatsys.Endpoint{X: []float64{1}, U: []float64{0}},
				flatsys.DefaultP2POptions())
			Expect(err).NotTo(HaveOccurred())
		})

		It("finds 3t^2 - 2t^3", func() {
			coefs := traj.Coefficients()[0]
			for i, want := range []float64{0, 0, 3, -2} {
				Expect(coefs[i]).To(BeNumerically("~", want, 1e-10))
			}
		})

		It("evaluates position and velocity at the midpoint", func() {
			x, u, err := traj.Eval(0.5)
			Expect(err).NotTo(HaveOccurred())
			Expect(x[0]).To(BeNumerically("~", 0.5, 1e-12))
			Expect(u[0]).To(BeNumerically("~", 1.5, 1e-12))
		})

		It("refuses strict evaluation outside the horizon", func() {
			_, _, err := traj.EvalStrict(1.5)
			Expect(err).To(MatchError(flatsys.ErrDomain))
		})
	})

	Context("with a linear spring chain", func() {
		var (
			chain *physics.SpringMass
			traj  *flatsys.SystemTrajectory
			end   flatsys.Endpoint
		)

		BeforeEach(func() {
			var err error
			chain, err = physics.NewSpringMassChain(2)
			Expect(err).NotTo(HaveOccurred())

			end = flatsys.Endpoint{X: []float64{1, 0.5, 0, 0}}
			end.U, err = flatsys.RestInput(chain.Linear(), end.X)
			Expect(err).NotTo(HaveOccurred())

			basis, err := flatsys.NewPolyFamily(10, 4)
			Expect(err).NotTo(HaveOccurred())
			traj, err = flatsys.PointToPoint(chain.Linear(), basis, 0, 4,
				flatsys.Endpoint{X: []float64{0, 0, 0, 0}, U: []float64{0}}, end,
				flatsys.DefaultP2POptions())
			Expect(err).NotTo(HaveOccurred())
		})

		It("agrees with an RK4 simulation driven by its input", func() {
			sim := dynamo.New(chain, integrators.NewRK4(), control.NewFeedforward(traj))
			result, err := sim.Run(context.Background(), dynamo.State{0, 0, 0, 0},
				dynamo.Config{Dt: 0.001, Duration: 4, ValidateState: true})
			Expect(err).NotTo(HaveOccurred())

			worst := 0.0
			for i := 0; i < len(result.Times); i += 100 {
				xd, _, err := traj.Eval(result.Times[i])
				Expect(err).NotTo(HaveOccurred())
				for j := range xd {
					worst = math.Max(worst, math.Abs(result.States[i][j]-xd[j]))
				}
			}
			Expect(worst).To(BeNumerically("<", 1e-6))

			final := result.States[len(result.States)-1]
			for j, want := range end.X {
				Expect(final[j]).To(BeNumerically("~", want, 1e-6))
			}
		})

		It("ends on the rest input", func() {
			_, u, err := traj.Eval(4)
			Expect(err).NotTo(HaveOccurred())
			Expect(u[0]).To(BeNumerically("~", end.U[0], 1e-6))
		})
	})
})
