package patient

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/pkg/fields"
)

// Patient maps to the patients table. CreatedBy is the owning reference.
type Patient struct {
	ID                uuid.UUID `db:"id" json:"id"`
	FirstName         string    `db:"first_name" json:"firstName"`
	LastName          string    `db:"last_name" json:"lastName"`
	DateOfBirth       string    `db:"date_of_birth" json:"dateOfBirth"`
	Gender            string    `db:"gender" json:"gender"`
	Email             string    `db:"email" json:"email"`
	Phone             string    `db:"phone" json:"phone"`
	Address           string    `db:"address" json:"address"`
	InsuranceID       *string   `db:"insurance_id" json:"insuranceId"`
	MedicalConditions []string  `db:"medical_conditions" json:"medicalConditions"`
	Allergies         []string  `db:"allergies" json:"allergies"`
	Notes             string    `db:"notes" json:"notes"`
	ProfileImageURL   *string   `db:"profile_image_url" json:"profileImageUrl"`
	CreatedBy         string    `db:"created_by" json:"createdBy"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time `db:"updated_at" json:"updatedAt"`
}

func (p *Patient) RecordID() uuid.UUID { return p.ID }
func (p *Patient) OwnerRef() string    { return p.CreatedBy }

// MedicalImage maps to the medical_images table.
type MedicalImage struct {
	ID          uuid.UUID `db:"id" json:"id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patientId"`
	ImageURL    string    `db:"image_url" json:"imageUrl"`
	ImageType   string    `db:"image_type" json:"imageType"`
	Description string    `db:"description" json:"description"`
	UploadedBy  string    `db:"uploaded_by" json:"uploadedBy"`
	UploadedAt  time.Time `db:"uploaded_at" json:"uploadedAt"`
}

type CreateRequest struct {
	FirstName         string            `json:"firstName" validate:"notblank,max=50"`
	LastName          string            `json:"lastName" validate:"notblank,max=50"`
	DateOfBirth       string            `json:"dateOfBirth" validate:"notblank,datetime=2006-01-02"`
	Gender            string            `json:"gender" validate:"notblank,max=20"`
	Email             string            `json:"email" validate:"notblank,email,max=100"`
	Phone             string            `json:"phone" validate:"notblank,max=20"`
	Address           string            `json:"address" validate:"notblank,max=200"`
	InsuranceID       *string           `json:"insuranceId" validate:"omitempty,max=50"`
	MedicalConditions fields.StringList `json:"medicalConditions"`
	Allergies         fields.StringList `json:"allergies"`
	Notes             string            `json:"notes"`
	ProfileImage      string            `json:"profileImage"`
	// CreatedBy is honoured only for the seeding principal.
	CreatedBy string `json:"createdBy"`
}

func (r *CreateRequest) trim() {
	for _, s := range []*string{&r.FirstName, &r.LastName, &r.DateOfBirth, &r.Gender, &r.Email, &r.Phone, &r.Address, &r.CreatedBy} {
		*s = strings.TrimSpace(*s)
	}
	if r.InsuranceID != nil {
		v := strings.TrimSpace(*r.InsuranceID)
		if v == "" {
			r.InsuranceID = nil
		} else {
			r.InsuranceID = &v
		}
	}
}

// UpdateRequest is a partial update: only keys present in the payload change.
type UpdateRequest struct {
	FirstName         fields.Optional[string]            `json:"firstName"`
	LastName          fields.Optional[string]            `json:"lastName"`
	DateOfBirth       fields.Optional[string]            `json:"dateOfBirth"`
	Gender            fields.Optional[string]            `json:"gender"`
	Email             fields.Optional[string]            `json:"email"`
	Phone             fields.Optional[string]            `json:"phone"`
	Address           fields.Optional[string]            `json:"address"`
	InsuranceID       fields.Optional[string]            `json:"insuranceId"`
	MedicalConditions fields.Optional[fields.StringList] `json:"medicalConditions"`
	Allergies         fields.Optional[fields.StringList] `json:"allergies"`
	Notes             fields.Optional[string]            `json:"notes"`
	ProfileImage      fields.Optional[string]            `json:"profileImage"`
	CreatedBy         fields.Optional[string]            `json:"createdBy"`
}

// Required is the permission the payload needs. Notes are the only field
// staff with limited write access may change.
func (r *UpdateRequest) Required() auth.Permission {
	if r.FirstName.Set || r.LastName.Set || r.DateOfBirth.Set || r.Gender.Set ||
		r.Email.Set || r.Phone.Set || r.Address.Set || r.InsuranceID.Set ||
		r.MedicalConditions.Set || r.Allergies.Set || r.ProfileImage.Set || r.CreatedBy.Set {
		return auth.PermWrite
	}
	return auth.PermLimitedWrite
}

type ImageRequest struct {
	ImageData   string `json:"imageData" validate:"notblank"`
	ImageType   string `json:"imageType" validate:"notblank,max=50"`
	Description string `json:"description"`
}
