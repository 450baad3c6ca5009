package notification_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/notification"
)

var _ = Describe("Templates", func() {
	It("rejects unknown keys", func() {
		_, err := notification.Lookup("does_not_exist")
		Expect(err).To(MatchError(apperrors.ErrUnknownTemplate))
	})

	It("substitutes provided fields", func() {
		tpl, err := notification.Lookup(notification.TemplateServiceDue)
		Expect(err).NotTo(HaveOccurred())

		msg := tpl.Render(notification.Fields{
			"vehicle_model": "Hilux",
			"license_plate": "B 1234 XY",
			"kilometers":    "5200",
		})
		Expect(msg).To(Equal("Vehicle Hilux (Plate: B 1234 XY) has reached 5200 km since its last service and is due for service."))
	})

	It("falls back to defaults for rejection fields", func() {
		tpl, _ := notification.Lookup(notification.TemplateRejected)
		msg := tpl.Render(notification.Fields{"request_id": "7", "destination": "Bandung"})

		Expect(msg).To(ContainSubstring("rejected by Unknown"))
		Expect(msg).To(ContainSubstring("Reason: No reason provided."))
		Expect(msg).To(ContainSubstring("Passengers: No additional passengers."))
	})

	It("treats blank values as missing for defaulted fields", func() {
		tpl, _ := notification.Lookup(notification.TemplateRejected)
		msg := tpl.Render(notification.Fields{"rejection_reason": "   "})
		Expect(msg).To(ContainSubstring("Reason: No reason provided."))
	})

	It("renders N/A for placeholders without a value", func() {
		tpl, _ := notification.Lookup(notification.TemplateAssigned)
		msg := tpl.Render(notification.Fields{"vehicle": "Avanza"})

		Expect(msg).To(ContainSubstring("drive Avanza"))
		Expect(msg).To(ContainSubstring("request #N/A"))
		Expect(msg).NotTo(ContainSubstring("{"))
	})
})
