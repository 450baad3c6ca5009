package vehicle_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/fleet-approval/internal/core/approval"
	"github.com/frahmantamala/fleet-approval/internal/core/database"
	"github.com/frahmantamala/fleet-approval/internal/core/database/dbtest"
	"github.com/frahmantamala/fleet-approval/internal/transport"
	"github.com/frahmantamala/fleet-approval/internal/user"
	"github.com/frahmantamala/fleet-approval/internal/vehicle"
	vehiclePostgres "github.com/frahmantamala/fleet-approval/internal/vehicle/postgres"
)

var _ = Describe("Vehicle Handler Integration", func() {
	var (
		router  chi.Router
		manager *user.User
		driver  *user.User
	)

	BeforeEach(func() {
		db, err := dbtest.OpenSQLite(&vehicle.Vehicle{}, &vehicle.KilometerLog{}, &vehicle.CouponRequest{})
		Expect(err).NotTo(HaveOccurred())

		manager = &user.User{ID: 1, FullName: "Tari", Role: approval.RoleTransportManager, IsActive: true}
		driver = &user.User{ID: 2, FullName: "Budi", Role: approval.RoleDriver, IsActive: true}
		directory := &stubDirectory{users: map[int64]*user.User{1: manager, 2: driver}}

		alloc := vehicle.NewAllocator(vehiclePostgres.NewVehicleRepository(db), directory, &stubAdvisories{},
			database.NewTransactionManager(db), 0, discard,
			vehicle.WithClock(func() time.Time { return time.Date(2026, 3, 20, 8, 0, 0, 0, time.UTC) }))
		handler := vehicle.NewHandler(transport.NewBaseHandler(discard), alloc)

		router = chi.NewRouter()
		router.Get("/vehicles", handler.List)
		router.Get("/vehicles/{id}", handler.Get)
		router.Post("/vehicles", handler.Create)
		router.Post("/vehicles/{id}/deactivate", handler.Deactivate)
		router.Post("/vehicles/{id}/kilometers", handler.RecordKilometers)
		router.Get("/vehicles/mine", handler.Mine)
		router.Get("/vehicles/mine/kilometers", handler.MyKilometerLogs)
		router.Get("/vehicles/due-for-service", handler.DueForService)
		router.Get("/coupons", handler.Coupons)
		router.Post("/coupons", handler.RequestCoupon)
	})

	send := func(actor *user.User, method, path string, body interface{}) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req := httptest.NewRequest(method, path, &buf)
		if actor != nil {
			req = req.WithContext(user.WithContext(context.Background(), actor))
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	newVehicle := map[string]interface{}{
		"license_plate":   "B 1234 XY",
		"model":           "Hilux",
		"capacity":        5,
		"source":          "organization",
		"fuel_type":       "naphtha",
		"fuel_efficiency": "10.5",
		"driver_id":       2,
	}

	It("should handle POST /vehicles and GET /vehicles/{id}", func() {
		rec := send(manager, http.MethodPost, "/vehicles", newVehicle)
		Expect(rec.Code).To(Equal(http.StatusCreated))

		var created vehicle.Vehicle
		Expect(json.Unmarshal(rec.Body.Bytes(), &created)).To(Succeed())
		Expect(created.Status).To(Equal(vehicle.StatusAvailable))
		Expect(created.FuelEfficiency.String()).To(Equal("10.5"))

		rec = send(manager, http.MethodGet, "/vehicles/1", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`"license_plate":"B 1234 XY"`))
	})

	It("should reject a duplicate plate with a conflict", func() {
		Expect(send(manager, http.MethodPost, "/vehicles", newVehicle).Code).To(Equal(http.StatusCreated))

		dup := map[string]interface{}{}
		for k, v := range newVehicle {
			dup[k] = v
		}
		delete(dup, "driver_id")
		Expect(send(manager, http.MethodPost, "/vehicles", dup).Code).To(Equal(http.StatusConflict))
	})

	It("should refuse creation by other roles and anonymous callers", func() {
		Expect(send(driver, http.MethodPost, "/vehicles", newVehicle).Code).To(Equal(http.StatusForbidden))
		Expect(send(nil, http.MethodPost, "/vehicles", newVehicle).Code).To(Equal(http.StatusUnauthorized))
	})

	It("should report validation failures", func() {
		rec := send(manager, http.MethodPost, "/vehicles", map[string]interface{}{"model": "Hilux"})
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(rec.Body.String()).To(ContainSubstring("VALIDATION_FAILED"))
	})

	It("should hide deactivated vehicles from the default list", func() {
		Expect(send(manager, http.MethodPost, "/vehicles", newVehicle).Code).To(Equal(http.StatusCreated))
		Expect(send(manager, http.MethodPost, "/vehicles/1/deactivate", nil).Code).To(Equal(http.StatusOK))

		var body struct {
			Vehicles []vehicle.Vehicle `json:"vehicles"`
		}
		rec := send(manager, http.MethodGet, "/vehicles", nil)
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body.Vehicles).To(BeEmpty())

		rec = send(manager, http.MethodGet, "/vehicles?include_inactive=true", nil)
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body.Vehicles).To(HaveLen(1))
	})

	It("should record monthly kilometers", func() {
		Expect(send(manager, http.MethodPost, "/vehicles", newVehicle).Code).To(Equal(http.StatusCreated))

		rec := send(driver, http.MethodPost, "/vehicles/1/kilometers", map[string]interface{}{"month": "2026-03", "kilometers": 420})
		Expect(rec.Code).To(Equal(http.StatusOK))

		var v vehicle.Vehicle
		Expect(json.Unmarshal(rec.Body.Bytes(), &v)).To(Succeed())
		Expect(v.TotalKilometers).To(Equal(int64(420)))
	})

	It("should serve the driver's own vehicle and kilometer history", func() {
		Expect(send(driver, http.MethodGet, "/vehicles/mine", nil).Code).To(Equal(http.StatusNotFound))

		Expect(send(manager, http.MethodPost, "/vehicles", newVehicle).Code).To(Equal(http.StatusCreated))
		Expect(send(driver, http.MethodPost, "/vehicles/1/kilometers", map[string]interface{}{"month": "2026-03", "kilometers": 420}).Code).To(Equal(http.StatusOK))

		rec := send(driver, http.MethodGet, "/vehicles/mine", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`"license_plate":"B 1234 XY"`))

		var body struct {
			Logs []vehicle.KilometerLog `json:"logs"`
		}
		rec = send(driver, http.MethodGet, "/vehicles/mine/kilometers", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body.Logs).To(HaveLen(1))
		Expect(body.Logs[0].Kilometers).To(Equal(int64(420)))
	})

	It("should list vehicles due for service to transport managers only", func() {
		Expect(send(manager, http.MethodPost, "/vehicles", newVehicle).Code).To(Equal(http.StatusCreated))
		Expect(send(driver, http.MethodPost, "/vehicles/1/kilometers", map[string]interface{}{"month": "2026-03", "kilometers": 5200}).Code).To(Equal(http.StatusOK))

		rec := send(manager, http.MethodGet, "/vehicles/due-for-service", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`"license_plate":"B 1234 XY"`))

		Expect(send(driver, http.MethodGet, "/vehicles/due-for-service", nil).Code).To(Equal(http.StatusForbidden))
	})

	It("should take and list coupon requests", func() {
		Expect(send(manager, http.MethodPost, "/vehicles", newVehicle).Code).To(Equal(http.StatusCreated))
		coupon := map[string]interface{}{"vehicle_id": 1, "month": "2026-03"}

		rec := send(driver, http.MethodPost, "/coupons", coupon)
		Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))
		Expect(rec.Body.String()).To(ContainSubstring("MISSING_KILOMETER_LOG"))

		Expect(send(driver, http.MethodPost, "/vehicles/1/kilometers", map[string]interface{}{"month": "2026-03", "kilometers": 300}).Code).To(Equal(http.StatusOK))
		Expect(send(driver, http.MethodPost, "/coupons", coupon).Code).To(Equal(http.StatusCreated))
		Expect(send(manager, http.MethodPost, "/coupons", coupon).Code).To(Equal(http.StatusForbidden))

		var body struct {
			Coupons []vehicle.CouponRequest `json:"coupons"`
		}
		rec = send(manager, http.MethodGet, "/coupons", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body.Coupons).To(HaveLen(1))
		Expect(body.Coupons[0].Month).To(Equal("2026-03"))
	})

	It("should answer 404 for an unknown vehicle", func() {
		Expect(send(manager, http.MethodGet, "/vehicles/99", nil).Code).To(Equal(http.StatusNotFound))
	})
})
