package vehicle_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/core/approval"
	"github.com/frahmantamala/fleet-approval/internal/core/database"
	"github.com/frahmantamala/fleet-approval/internal/core/database/dbtest"
	"github.com/frahmantamala/fleet-approval/internal/notification"
	"github.com/frahmantamala/fleet-approval/internal/user"
	"github.com/frahmantamala/fleet-approval/internal/vehicle"
	vehiclePostgres "github.com/frahmantamala/fleet-approval/internal/vehicle/postgres"
)

type stubDirectory struct {
	users map[int64]*user.User
}

func (d *stubDirectory) GetByID(_ context.Context, id int64) (*user.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return u, nil
}

func (d *stubDirectory) ActiveByRole(_ context.Context, role approval.Role) ([]*user.User, error) {
	var out []*user.User
	for _, u := range d.users {
		if u.Role == role && u.IsActive {
			out = append(out, u)
		}
	}
	return out, nil
}

type advisoryCall struct {
	key        string
	target     notification.Target
	recipients []*user.User
	fields     notification.Fields
}

type stubAdvisories struct {
	mu    sync.Mutex
	calls []advisoryCall
	err   error
}

func (s *stubAdvisories) DispatchMany(_ context.Context, key string, target notification.Target, recipients []*user.User, fields notification.Fields) ([]*notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, advisoryCall{key: key, target: target, recipients: recipients, fields: fields})
	return nil, s.err
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

var _ = Describe("Allocator", func() {
	var (
		ctx        context.Context
		db         *gorm.DB
		tm         database.TransactionManager
		advisories *stubAdvisories
		alloc      *vehicle.Allocator
		manager    *user.User
		driver     *user.User
		general    *user.User
		employee   *user.User
	)

	driverID := func(id int64) *int64 { return &id }

	seed := func(v *vehicle.Vehicle) *vehicle.Vehicle {
		if v.Status == "" {
			v.Status = vehicle.StatusAvailable
		}
		if v.FuelEfficiency.IsZero() {
			v.FuelEfficiency = decimal.NewFromInt(12)
		}
		v.IsActive = !v.IsDeleted
		Expect(db.Create(v).Error).To(Succeed())
		return v
	}

	reload := func(id int64) *vehicle.Vehicle {
		var v vehicle.Vehicle
		Expect(db.First(&v, id).Error).To(Succeed())
		return &v
	}

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		db, err = dbtest.OpenSQLite(&vehicle.Vehicle{}, &vehicle.KilometerLog{}, &vehicle.CouponRequest{})
		Expect(err).NotTo(HaveOccurred())
		tm = database.NewTransactionManager(db)

		manager = &user.User{ID: 1, FullName: "Tari", Role: approval.RoleTransportManager, IsActive: true}
		driver = &user.User{ID: 2, FullName: "Budi", Role: approval.RoleDriver, IsActive: true}
		general = &user.User{ID: 3, FullName: "Gita", Role: approval.RoleGeneralSystem, IsActive: true}
		employee = &user.User{ID: 4, FullName: "Eko", Role: approval.RoleEmployee, IsActive: true}
		directory := &stubDirectory{users: map[int64]*user.User{1: manager, 2: driver, 3: general, 4: employee}}

		advisories = &stubAdvisories{}
		alloc = vehicle.NewAllocator(vehiclePostgres.NewVehicleRepository(db), directory, advisories, tm, 0, discard)
	})

	Describe("Assign", func() {
		It("requires a transaction", func() {
			v := seed(&vehicle.Vehicle{LicensePlate: "B 1", Model: "Avanza", Capacity: 7})
			_, err := alloc.Assign(ctx, v.ID, vehicle.AssignOptions{})
			Expect(err).To(HaveOccurred())
			Expect(reload(v.ID).Status).To(Equal(vehicle.StatusAvailable))
		})

		It("marks an available vehicle in use", func() {
			v := seed(&vehicle.Vehicle{LicensePlate: "B 1", Model: "Avanza", Capacity: 7, DriverID: driverID(2)})
			err := tm.RunInTx(ctx, func(txCtx context.Context) error {
				assigned, err := alloc.Assign(txCtx, v.ID, vehicle.AssignOptions{RequireDriver: true})
				if err == nil {
					Expect(assigned.Status).To(Equal(vehicle.StatusInUse))
				}
				return err
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(reload(v.ID).Status).To(Equal(vehicle.StatusInUse))
		})

		DescribeTable("refuses vehicles that are not assignable",
			func(v *vehicle.Vehicle, opts vehicle.AssignOptions, expected error) {
				seed(v)
				err := tm.RunInTx(ctx, func(txCtx context.Context) error {
					_, err := alloc.Assign(txCtx, v.ID, opts)
					return err
				})
				Expect(err).To(MatchError(expected))
			},
			Entry("in use", &vehicle.Vehicle{LicensePlate: "B 2", Model: "X", Capacity: 4, Status: vehicle.StatusInUse}, vehicle.AssignOptions{}, apperrors.ErrVehicleUnavailable),
			Entry("in maintenance", &vehicle.Vehicle{LicensePlate: "B 3", Model: "X", Capacity: 4, Status: vehicle.StatusMaintenance}, vehicle.AssignOptions{}, apperrors.ErrVehicleUnavailable),
			Entry("soft deleted", &vehicle.Vehicle{LicensePlate: "B 4", Model: "X", Capacity: 4, IsDeleted: true}, vehicle.AssignOptions{}, apperrors.ErrVehicleUnavailable),
			Entry("without driver", &vehicle.Vehicle{LicensePlate: "B 5", Model: "X", Capacity: 4}, vehicle.AssignOptions{RequireDriver: true}, apperrors.ErrNoDriverAssigned),
		)

		It("hands a vehicle to exactly one of two concurrent callers", func() {
			v := seed(&vehicle.Vehicle{LicensePlate: "B 9", Model: "Innova", Capacity: 7, DriverID: driverID(2)})

			var wg sync.WaitGroup
			results := make([]error, 2)
			start := make(chan struct{})
			for i := range results {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					<-start
					results[i] = tm.RunInTx(ctx, func(txCtx context.Context) error {
						_, err := alloc.Assign(txCtx, v.ID, vehicle.AssignOptions{RequireDriver: true})
						return err
					})
				}(i)
			}
			close(start)
			wg.Wait()

			successes, conflicts := 0, 0
			for _, err := range results {
				switch {
				case err == nil:
					successes++
				case errors.Is(err, apperrors.ErrVehicleUnavailable):
					conflicts++
				}
			}
			Expect(successes).To(Equal(1))
			Expect(conflicts).To(Equal(1))
			Expect(reload(v.ID).Status).To(Equal(vehicle.StatusInUse))
		})
	})

	Describe("Release", func() {
		It("returns the vehicle to available", func() {
			v := seed(&vehicle.Vehicle{LicensePlate: "B 1", Model: "X", Capacity: 4, Status: vehicle.StatusInUse})
			released, err := alloc.Release(ctx, v.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(released.Status).To(Equal(vehicle.StatusAvailable))
			Expect(reload(v.ID).Status).To(Equal(vehicle.StatusAvailable))
		})

		It("reports unknown vehicles", func() {
			_, err := alloc.Release(ctx, 999)
			Expect(err).To(MatchError(apperrors.ErrVehicleNotFound))
		})

		It("leaves vehicles that are not on a trip alone", func() {
			v := seed(&vehicle.Vehicle{LicensePlate: "B 1", Model: "X", Capacity: 4, Status: vehicle.StatusMaintenance})
			_, err := alloc.Release(ctx, v.ID)
			Expect(err).To(MatchError(apperrors.ErrVehicleStatusMismatch))
			Expect(reload(v.ID).Status).To(Equal(vehicle.StatusMaintenance))
		})
	})

	Describe("ReturnFrom", func() {
		It("returns a vehicle parked in the given status", func() {
			v := seed(&vehicle.Vehicle{LicensePlate: "B 1", Model: "X", Capacity: 4, Status: vehicle.StatusService})
			back, err := alloc.ReturnFrom(ctx, v.ID, vehicle.StatusService)
			Expect(err).NotTo(HaveOccurred())
			Expect(back.Status).To(Equal(vehicle.StatusAvailable))
			Expect(reload(v.ID).Status).To(Equal(vehicle.StatusAvailable))
		})

		It("refuses a vehicle in use", func() {
			v := seed(&vehicle.Vehicle{LicensePlate: "B 1", Model: "X", Capacity: 4, Status: vehicle.StatusInUse})
			_, err := alloc.ReturnFrom(ctx, v.ID, vehicle.StatusMaintenance)
			Expect(err).To(MatchError(apperrors.ErrVehicleInUse))
			Expect(reload(v.ID).Status).To(Equal(vehicle.StatusInUse))
		})

		It("refuses a vehicle in another status", func() {
			v := seed(&vehicle.Vehicle{LicensePlate: "B 1", Model: "X", Capacity: 4, Status: vehicle.StatusMaintenance})
			_, err := alloc.ReturnFrom(ctx, v.ID, vehicle.StatusService)
			Expect(err).To(MatchError(apperrors.ErrVehicleStatusMismatch))
		})
	})

	Describe("ToMaintenance and ToService", func() {
		It("refuses a vehicle in use", func() {
			v := seed(&vehicle.Vehicle{LicensePlate: "B 1", Model: "X", Capacity: 4, Status: vehicle.StatusInUse, TotalKilometers: 9000})
			_, err := alloc.ToMaintenance(ctx, v.ID)
			Expect(err).To(MatchError(apperrors.ErrVehicleInUse))
			_, err = alloc.ToService(ctx, v.ID)
			Expect(err).To(MatchError(apperrors.ErrVehicleInUse))
		})

		It("moves an idle vehicle to maintenance", func() {
			v := seed(&vehicle.Vehicle{LicensePlate: "B 1", Model: "X", Capacity: 4})
			_, err := alloc.ToMaintenance(ctx, v.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(reload(v.ID).Status).To(Equal(vehicle.StatusMaintenance))
		})

		It("requires the service interval to be reached", func() {
			v := seed(&vehicle.Vehicle{LicensePlate: "B 1", Model: "X", Capacity: 4, TotalKilometers: 14999, LastServiceKilometers: 10000})
			_, err := alloc.ToService(ctx, v.ID)
			Expect(err).To(MatchError(apperrors.ErrServiceNotDue))
		})

		It("resets the service odometer", func() {
			v := seed(&vehicle.Vehicle{LicensePlate: "B 1", Model: "X", Capacity: 4, TotalKilometers: 15000, LastServiceKilometers: 10000})
			_, err := alloc.ToService(ctx, v.ID)
			Expect(err).NotTo(HaveOccurred())

			stored := reload(v.ID)
			Expect(stored.Status).To(Equal(vehicle.StatusService))
			Expect(stored.LastServiceKilometers).To(Equal(int64(15000)))
			Expect(stored.KilometersSinceService()).To(BeZero())
		})
	})

	Describe("Create", func() {
		dto := func() vehicle.CreateVehicleDTO {
			return vehicle.CreateVehicleDTO{
				LicensePlate:   "B 1234 XY",
				Model:          "Hilux",
				Capacity:       5,
				Source:         vehicle.SourceOrganization,
				FuelType:       vehicle.FuelNaphtha,
				FuelEfficiency: decimal.RequireFromString("10.5"),
			}
		}

		It("is restricted to transport managers", func() {
			_, err := alloc.Create(ctx, employee, dto())
			Expect(err).To(MatchError(apperrors.ErrRoleNotPermitted))
		})

		It("creates an available vehicle", func() {
			v, err := alloc.Create(ctx, manager, dto())
			Expect(err).NotTo(HaveOccurred())
			Expect(v.ID).NotTo(BeZero())
			Expect(v.Status).To(Equal(vehicle.StatusAvailable))
			Expect(v.IsActive).To(BeTrue())
		})

		It("rejects duplicate plates", func() {
			_, err := alloc.Create(ctx, manager, dto())
			Expect(err).NotTo(HaveOccurred())
			_, err = alloc.Create(ctx, manager, dto())
			Expect(err).To(MatchError(apperrors.ErrDuplicateLicensePlate))
		})

		It("requires a rental company for rented vehicles", func() {
			d := dto()
			d.Source = vehicle.SourceRented
			_, err := alloc.Create(ctx, manager, d)
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeValidation))
		})

		It("rejects a non-positive fuel efficiency", func() {
			d := dto()
			d.FuelEfficiency = decimal.Zero
			_, err := alloc.Create(ctx, manager, d)
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeValidation))
		})

		It("only accepts drivers without another vehicle", func() {
			d := dto()
			d.DriverID = driverID(employee.ID)
			_, err := alloc.Create(ctx, manager, d)
			Expect(err).To(HaveOccurred())

			d.DriverID = driverID(driver.ID)
			_, err = alloc.Create(ctx, manager, d)
			Expect(err).NotTo(HaveOccurred())

			d2 := dto()
			d2.LicensePlate = "B 5678 XY"
			d2.DriverID = driverID(driver.ID)
			_, err = alloc.Create(ctx, manager, d2)
			Expect(err).To(MatchError(apperrors.ErrVehicleAlreadyAssigned))
		})
	})

	Describe("Activate and Deactivate", func() {
		It("soft deletes and restores", func() {
			v := seed(&vehicle.Vehicle{LicensePlate: "B 1", Model: "X", Capacity: 4})

			_, err := alloc.Deactivate(ctx, manager, v.ID)
			Expect(err).NotTo(HaveOccurred())
			stored := reload(v.ID)
			Expect(stored.IsActive).To(BeFalse())
			Expect(stored.IsDeleted).To(BeTrue())

			listed, err := alloc.List(ctx, vehicle.ListFilter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(listed).To(BeEmpty())

			_, err = alloc.Activate(ctx, manager, v.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(reload(v.ID).IsActive).To(BeTrue())
		})

		It("refuses to deactivate a vehicle on a trip", func() {
			v := seed(&vehicle.Vehicle{LicensePlate: "B 1", Model: "X", Capacity: 4, Status: vehicle.StatusInUse})
			_, err := alloc.Deactivate(ctx, manager, v.ID)
			Expect(err).To(MatchError(apperrors.ErrVehicleInUse))
		})
	})

	Describe("RecordMonthlyKilometers", func() {
		var v *vehicle.Vehicle

		BeforeEach(func() {
			v = seed(&vehicle.Vehicle{LicensePlate: "B 1", Model: "Hilux", Capacity: 4, DriverID: driverID(2), TotalKilometers: 4000})
		})

		It("adds the kilometers without an advisory below the interval", func() {
			updated, err := alloc.RecordMonthlyKilometers(ctx, driver, v.ID, vehicle.RecordKilometersDTO{Month: "2026-09", Kilometers: 500})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.TotalKilometers).To(Equal(int64(4500)))
			Expect(advisories.calls).To(BeEmpty())
		})

		It("accepts one entry per month", func() {
			_, err := alloc.RecordMonthlyKilometers(ctx, driver, v.ID, vehicle.RecordKilometersDTO{Month: "2026-09", Kilometers: 100})
			Expect(err).NotTo(HaveOccurred())
			_, err = alloc.RecordMonthlyKilometers(ctx, manager, v.ID, vehicle.RecordKilometersDTO{Month: "2026-09", Kilometers: 100})
			Expect(err).To(MatchError(apperrors.ErrKilometersLogged))
			Expect(reload(v.ID).TotalKilometers).To(Equal(int64(4100)))
		})

		It("is limited to the driver and transport managers", func() {
			_, err := alloc.RecordMonthlyKilometers(ctx, employee, v.ID, vehicle.RecordKilometersDTO{Month: "2026-09", Kilometers: 100})
			Expect(err).To(MatchError(apperrors.ErrRoleNotPermitted))
		})

		It("requires a driver on the vehicle", func() {
			bare := seed(&vehicle.Vehicle{LicensePlate: "B 2", Model: "X", Capacity: 4})
			_, err := alloc.RecordMonthlyKilometers(ctx, manager, bare.ID, vehicle.RecordKilometersDTO{Month: "2026-09", Kilometers: 100})
			Expect(err).To(MatchError(apperrors.ErrNoDriverAssigned))
		})

		It("rejects a malformed month", func() {
			_, err := alloc.RecordMonthlyKilometers(ctx, driver, v.ID, vehicle.RecordKilometersDTO{Month: "09-2026", Kilometers: 100})
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeValidation))
		})

		It("advises managers, general system and the driver once service is due", func() {
			_, err := alloc.RecordMonthlyKilometers(ctx, driver, v.ID, vehicle.RecordKilometersDTO{Month: "2026-09", Kilometers: 1000})
			Expect(err).NotTo(HaveOccurred())

			Expect(advisories.calls).To(HaveLen(1))
			call := advisories.calls[0]
			Expect(call.key).To(Equal(notification.TemplateServiceDue))
			Expect(call.target.VehicleID).To(Equal(v.ID))
			Expect(call.fields["kilometers"]).To(Equal("5000"))
			Expect(call.recipients).To(ConsistOf(manager, general, driver))
		})

		It("keeps the odometer update when the advisory fails", func() {
			advisories.err = errors.New("inbox down")
			updated, err := alloc.RecordMonthlyKilometers(ctx, driver, v.ID, vehicle.RecordKilometersDTO{Month: "2026-09", Kilometers: 2000})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.TotalKilometers).To(Equal(int64(6000)))
			Expect(reload(v.ID).TotalKilometers).To(Equal(int64(6000)))
		})
	})
})
