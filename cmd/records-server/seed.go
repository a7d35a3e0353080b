package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ehr/records/internal/config"
	"github.com/ehr/records/internal/domain/clinical"
	"github.com/ehr/records/internal/domain/identity"
	"github.com/ehr/records/internal/domain/medication"
	"github.com/ehr/records/internal/domain/patient"
	"github.com/ehr/records/internal/domain/scheduling"
	"github.com/ehr/records/internal/platform/apperr"
	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/internal/platform/blobstore"
	"github.com/ehr/records/internal/platform/db"
)

const seedPrincipalID = "seed"

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load demo users and sample clinical records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx := context.Background()
			pool, err := db.NewPool(ctx, poolConfig(cfg))
			if err != nil {
				return err
			}
			defer pool.Close()

			svcs := newServices(pool, nil, blobstore.NewInMemoryStore(), logger)
			created, err := seed(ctx, svcs)
			if err != nil {
				return err
			}
			if !created {
				fmt.Println("Database already seeded; nothing to do.")
				return nil
			}
			fmt.Println("Seed data added.")
			return nil
		},
	}
}

func demoUsers() []identity.NewUser {
	return []identity.NewUser{
		{Username: "admin", Password: "admin123", FirstName: "Admin", LastName: "User", Email: "admin@hospital.com", Role: auth.RoleAdmin},
		{Username: "doctor1", Password: "doctor123", FirstName: "John", LastName: "Smith", Email: "john.smith@hospital.com", Role: auth.RoleDoctor},
		{Username: "doctor2", Password: "doctor123", FirstName: "Sarah", LastName: "Johnson", Email: "sarah.johnson@hospital.com", Role: auth.RoleDoctor},
		{Username: "nurse1", Password: "nurse123", FirstName: "Emily", LastName: "Davis", Email: "emily.davis@hospital.com", Role: auth.RoleNurse},
		{Username: "reception1", Password: "reception123", FirstName: "Mike", LastName: "Wilson", Email: "mike.wilson@hospital.com", Role: auth.RoleReceptionist},
		{Username: "patient1", Password: "patient123", FirstName: "Alice", LastName: "Brown", Email: "alice.brown@example.com", Role: auth.RolePatient},
	}
}

func strPtr(s string) *string { return &s }

// seed creates the demo data set. It reports false without writing anything
// when the admin user already exists.
func seed(ctx context.Context, svcs services) (bool, error) {
	p := auth.SeedingPrincipal(seedPrincipalID)

	ids := make(map[string]string)
	for _, u := range demoUsers() {
		created, err := svcs.identity.CreateUser(ctx, u)
		if err != nil {
			if apperr.Is(err, apperr.KindConflict) && u.Username == "admin" {
				return false, nil
			}
			return false, fmt.Errorf("seed user %s: %w", u.Username, err)
		}
		ids[u.Username] = created.ID
	}
	doctor1, doctor2 := ids["doctor1"], ids["doctor2"]

	patients := []patient.CreateRequest{
		{
			FirstName: "Alice", LastName: "Brown", DateOfBirth: "1985-05-15", Gender: "Female",
			Email: "alice.brown@example.com", Phone: "555-123-4567", Address: "123 Main St, Cityville, ST 12345",
			InsuranceID:       strPtr("INS12345"),
			MedicalConditions: []string{"Asthma", "Hypertension"},
			Allergies:         []string{"Penicillin", "Peanuts"},
			Notes:             "Patient has seasonal allergies and uses an inhaler as needed.",
			CreatedBy:         doctor1,
		},
		{
			FirstName: "Bob", LastName: "Johnson", DateOfBirth: "1970-10-20", Gender: "Male",
			Email: "bob.johnson@example.com", Phone: "555-987-6543", Address: "456 Oak Ave, Townsburg, ST 67890",
			InsuranceID:       strPtr("INS67890"),
			MedicalConditions: []string{"Type 2 Diabetes", "Arthritis"},
			Allergies:         []string{"Sulfa"},
			Notes:             "Patient needs regular blood sugar monitoring.",
			CreatedBy:         doctor2,
		},
		{
			FirstName: "Carol", LastName: "Martinez", DateOfBirth: "1990-03-12", Gender: "Female",
			Email: "carol.martinez@example.com", Phone: "555-456-7890", Address: "789 Pine Blvd, Villageton, ST 54321",
			InsuranceID:       strPtr("INS54321"),
			MedicalConditions: []string{"Anxiety", "Migraines"},
			Allergies:         []string{"Latex"},
			Notes:             "Patient takes preventive medication for migraines.",
			CreatedBy:         doctor1,
		},
	}
	var pids []string
	for _, req := range patients {
		pt, err := svcs.patients.CreatePatient(ctx, p, req)
		if err != nil {
			return false, fmt.Errorf("seed patient %s %s: %w", req.FirstName, req.LastName, err)
		}
		pids = append(pids, pt.ID.String())
	}

	appointments := []scheduling.CreateRequest{
		{PatientID: pids[0], DoctorID: doctor1, AppointmentDate: "2025-04-15", StartTime: "09:00", EndTime: "09:30",
			Reason: "Annual physical exam", Notes: "Patient requested early morning appointment"},
		{PatientID: pids[1], DoctorID: doctor2, AppointmentDate: "2025-04-16", StartTime: "14:00", EndTime: "14:30",
			Reason: "Diabetes follow-up", Notes: "Check A1C levels"},
		{PatientID: pids[2], DoctorID: doctor1, AppointmentDate: "2025-04-17", StartTime: "11:00", EndTime: "11:45",
			Reason: "Migraine consultation"},
	}
	for _, req := range appointments {
		if _, err := svcs.schedule.CreateAppointment(ctx, p, req); err != nil {
			return false, fmt.Errorf("seed appointment: %w", err)
		}
	}

	meds := []medication.CreateRequest{
		{PatientID: pids[0], PrescribedBy: doctor1, Name: "Albuterol", Dosage: "90mcg", Frequency: "As needed",
			StartDate: "2024-01-10", Notes: "Use inhaler for acute symptoms"},
		{PatientID: pids[0], PrescribedBy: doctor1, Name: "Lisinopril", Dosage: "10mg", Frequency: "Once daily",
			StartDate: "2024-02-01"},
		{PatientID: pids[1], PrescribedBy: doctor2, Name: "Metformin", Dosage: "500mg", Frequency: "Twice daily",
			StartDate: "2023-11-15", Notes: "Take with meals"},
		{PatientID: pids[2], PrescribedBy: doctor1, Name: "Sumatriptan", Dosage: "50mg", Frequency: "At migraine onset",
			StartDate: "2024-03-05", EndDate: strPtr("2024-09-05")},
	}
	for _, req := range meds {
		if _, err := svcs.medication.CreateMedication(ctx, p, req); err != nil {
			return false, fmt.Errorf("seed medication %s: %w", req.Name, err)
		}
	}

	visits := []clinical.CreateRequest{
		{PatientID: pids[0], DoctorID: doctor1, VisitDate: "2024-01-10", ChiefComplaint: "Shortness of breath",
			Diagnosis: "Asthma exacerbation", TreatmentPlan: "Albuterol as needed, review in two weeks", FollowUpNeeded: true},
		{PatientID: pids[1], DoctorID: doctor2, VisitDate: "2023-11-15", ChiefComplaint: "Elevated blood sugar",
			Diagnosis: "Type 2 diabetes", TreatmentPlan: "Start metformin, diet counselling", FollowUpNeeded: true},
		{PatientID: pids[2], DoctorID: doctor1, VisitDate: "2024-03-05", ChiefComplaint: "Recurring headaches",
			Diagnosis: "Migraine without aura", TreatmentPlan: "Sumatriptan at onset, keep a headache diary"},
	}
	for _, req := range visits {
		if _, err := svcs.clinical.CreateMedicalRecord(ctx, p, req); err != nil {
			return false, fmt.Errorf("seed medical record: %w", err)
		}
	}

	return true, nil
}
