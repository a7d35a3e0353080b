package patient

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/platform/apperr"
	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/internal/platform/blobstore"
	"github.com/ehr/records/internal/platform/db"
	"github.com/ehr/records/internal/platform/records"
	"github.com/ehr/records/internal/platform/validation"
	"github.com/ehr/records/pkg/fields"
	"github.com/ehr/records/pkg/pagination"
)

const (
	profileFolder = "patient_profiles"
	imageFolder   = "medical_images"
)

type Service struct {
	records  *records.Service[*Patient]
	images   ImageRepository
	blobs    blobstore.Uploader
	validate *validation.Validator
	logger   zerolog.Logger
}

func NewService(patients PatientRepository, images ImageRepository, blobs blobstore.Uploader, tx db.Transactor, logger zerolog.Logger, opts ...records.Option[*Patient]) *Service {
	return &Service{
		records:  records.NewService[*Patient]("patient", patients, tx, logger, opts...),
		images:   images,
		blobs:    blobs,
		validate: validation.New(),
		logger:   logger,
	}
}

func (s *Service) ListPatients(ctx context.Context, p *auth.Principal, search string, page pagination.Request) (*pagination.Page[*Patient], error) {
	filters := records.Filters{}.Set("search", strings.TrimSpace(search))
	return s.records.List(ctx, p, filters, page)
}

func (s *Service) GetPatient(ctx context.Context, p *auth.Principal, id uuid.UUID) (*Patient, error) {
	return s.records.Get(ctx, p, id)
}

// CreatePatient validates the request, stamps the owning reference from the
// principal and stores the patient. Only the seeding principal may name a
// different owner.
func (s *Service) CreatePatient(ctx context.Context, p *auth.Principal, req CreateRequest) (*Patient, error) {
	if err := auth.Authorize(p, auth.PermWrite).Err(); err != nil {
		return nil, err
	}
	req.trim()
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	pt := &Patient{
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		DateOfBirth:       req.DateOfBirth,
		Gender:            req.Gender,
		Email:             req.Email,
		Phone:             req.Phone,
		Address:           req.Address,
		InsuranceID:       req.InsuranceID,
		MedicalConditions: fields.Normalize(req.MedicalConditions),
		Allergies:         fields.Normalize(req.Allergies),
		Notes:             req.Notes,
		CreatedBy:         p.ID,
	}
	if p.Seeding && req.CreatedBy != "" {
		pt.CreatedBy = req.CreatedBy
	}

	if strings.TrimSpace(req.ProfileImage) != "" {
		url, err := s.upload(ctx, profileFolder, "profileImage", req.ProfileImage)
		if err != nil {
			return nil, err
		}
		pt.ProfileImageURL = &url
	}

	if err := s.records.Create(ctx, p, pt); err != nil {
		return nil, err
	}
	return pt, nil
}

// UpdatePatient applies only the keys present in req. A payload that touches
// nothing but notes needs limited write access.
func (s *Service) UpdatePatient(ctx context.Context, p *auth.Principal, id uuid.UUID, req UpdateRequest) (*Patient, error) {
	return s.records.Update(ctx, p, id, req.Required(), func(pt *Patient) error {
		var patch validation.Patch
		patch.Required("firstName", req.FirstName, &pt.FirstName, validation.MaxLen(50))
		patch.Required("lastName", req.LastName, &pt.LastName, validation.MaxLen(50))
		patch.Required("dateOfBirth", req.DateOfBirth, &pt.DateOfBirth, validation.Date)
		patch.Required("gender", req.Gender, &pt.Gender, validation.MaxLen(20))
		patch.Required("email", req.Email, &pt.Email, s.emailCheck(), validation.MaxLen(100))
		patch.Required("phone", req.Phone, &pt.Phone, validation.MaxLen(20))
		patch.Required("address", req.Address, &pt.Address, validation.MaxLen(200))
		patch.Nullable("insuranceId", req.InsuranceID, &pt.InsuranceID, validation.MaxLen(50))
		if err := patch.Err(); err != nil {
			return err
		}

		if req.MedicalConditions.Set {
			pt.MedicalConditions = fields.Normalize(req.MedicalConditions.Value)
		}
		if req.Allergies.Set {
			pt.Allergies = fields.Normalize(req.Allergies.Value)
		}
		req.Notes.Apply(&pt.Notes)
		req.CreatedBy.Apply(&pt.CreatedBy)

		if req.ProfileImage.Set {
			if req.ProfileImage.Null || strings.TrimSpace(req.ProfileImage.Value) == "" {
				pt.ProfileImageURL = nil
				return nil
			}
			url, err := s.upload(ctx, profileFolder, "profileImage", req.ProfileImage.Value)
			if err != nil {
				return err
			}
			pt.ProfileImageURL = &url
		}
		return nil
	})
}

func (s *Service) emailCheck() validation.Check {
	return s.validate.VarCheck("email", "must be a valid email address")
}

// DeletePatient removes the patient after its registered cascades.
func (s *Service) DeletePatient(ctx context.Context, p *auth.Principal, id uuid.UUID) error {
	return s.records.Delete(ctx, p, id)
}

// AddImage uploads an image for a patient the caller may write to.
func (s *Service) AddImage(ctx context.Context, p *auth.Principal, patientID uuid.UUID, req ImageRequest) (*MedicalImage, error) {
	if _, err := s.records.GetFor(ctx, p, patientID, auth.PermWrite); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	url, err := s.upload(ctx, imageFolder+"/"+patientID.String(), "imageData", req.ImageData)
	if err != nil {
		return nil, err
	}
	img := &MedicalImage{
		PatientID:   patientID,
		ImageURL:    url,
		ImageType:   strings.TrimSpace(req.ImageType),
		Description: req.Description,
		UploadedBy:  p.ID,
	}
	if err := s.images.Create(ctx, img); err != nil {
		return nil, apperr.AsStorage("create medical image", err)
	}
	return img, nil
}

// ListImages pages a patient's images newest first, using the patient's read
// scope.
func (s *Service) ListImages(ctx context.Context, p *auth.Principal, patientID uuid.UUID, page pagination.Request) (*pagination.Page[*MedicalImage], error) {
	if _, err := s.records.GetFor(ctx, p, patientID, auth.PermRead); err != nil {
		return nil, err
	}
	items, total, err := s.images.ListByPatient(ctx, patientID, page.Limit(), page.Offset())
	if err != nil {
		return nil, apperr.AsStorage("list medical images", err)
	}
	return pagination.NewPage(items, page, total), nil
}

func (s *Service) upload(ctx context.Context, folder, field, encoded string) (string, error) {
	data, contentType, err := blobstore.DecodeImage(encoded)
	if err != nil {
		switch {
		case errors.Is(err, blobstore.ErrFileTooLarge):
			return "", apperr.Invalid(field, "exceeds the 10MB limit")
		case errors.Is(err, blobstore.ErrInvalidContentType):
			return "", apperr.Invalid(field, "must be a PNG, JPEG, GIF, WebP or DICOM image")
		default:
			return "", apperr.Invalid(field, err.Error())
		}
	}
	url, err := s.blobs.Upload(ctx, folder, contentType, data)
	if err != nil {
		return "", apperr.Storage("upload image", err)
	}
	return url, nil
}
