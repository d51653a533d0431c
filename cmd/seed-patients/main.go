package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"medquery/internal/config"
	"medquery/internal/database"
	"medquery/internal/domain"
	"medquery/internal/logger"
	"medquery/internal/repository"
)

var (
	firstNames = []string{
		"Jane", "John", "Maria", "David", "Sarah", "Michael", "Alice", "Robert",
		"Emily", "Daniel", "Laura", "James", "Olivia", "William", "Sophia",
		"Liam", "Isabella", "Noah", "Mia", "Ethan", "Ava", "Lucas", "Amelia",
	}
	lastNames = []string{
		"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller",
		"Davis", "Rodriguez", "Martinez", "Hernandez", "Lopez", "Gonzalez",
		"Wilson", "Anderson", "Thomas", "Taylor", "Moore", "Jackson", "Martin",
	}
	streets = []string{"Maple St", "Oak Dr", "Pine Ave", "Cedar Ln", "Elm St", "Birch Rd"}
	cities  = []string{"Springfield", "Riverton", "Lakeside", "Fairview", "Hillcrest"}

	conditionsPool = []string{
		"Type 2 Diabetes", "Hypertension", "Asthma", "High Cholesterol",
		"Hypothyroidism", "Depression", "Anxiety", "Arthritis",
		"COPD", "GERD", "Allergic Rhinitis",
	}
	medsPool = []string{
		"Metformin", "Lisinopril", "Albuterol", "Atorvastatin", "Levothyroxine",
		"Sertraline", "Escitalopram", "Ibuprofen", "Omeprazole", "Amlodipine",
	}

	noteTemplates = []string{
		"Patient has responded well to %s. %s",
		"Condition stable on current regimen. %s",
		"Follow-up recommended in 3 months. %s",
		"Lifestyle modifications discussed. %s",
	}
	extraNotes = []string{
		"Blood pressure stable.",
		"A1C trending down.",
		"Symptoms improved.",
		"No adverse effects reported.",
		"Needs vaccination update.",
	}
)

func randDate(rng *rand.Rand) string {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	days := int(end.Sub(start).Hours() / 24)
	return start.AddDate(0, 0, rng.Intn(days+1)).Format("2006-01-02")
}

func sample(rng *rand.Rand, pool []string, k int) []string {
	idx := rng.Perm(len(pool))[:k]
	out := make([]string, 0, k)
	for _, i := range idx {
		out = append(out, pool[i])
	}
	return out
}

func generate(rng *rand.Rand, count int) []domain.PatientRecord {
	usedNames := make(map[string]bool)
	patients := make([]domain.PatientRecord, 0, count)

	for i := 1; i <= count; i++ {
		name := fmt.Sprintf("%s %s", firstNames[rng.Intn(len(firstNames))], lastNames[rng.Intn(len(lastNames))])
		if usedNames[name] {
			name = fmt.Sprintf("%s-%d", name, 2+rng.Intn(998))
		}
		usedNames[name] = true

		numConds := 0
		if rng.Float64() >= 0.1 {
			numConds = 1 + rng.Intn(3)
		}
		numMeds := 0
		if rng.Float64() >= 0.15 {
			numMeds = 1 + rng.Intn(3)
		}
		conds := sample(rng, conditionsPool, numConds)
		meds := sample(rng, medsPool, numMeds)

		visitSet := make(map[string]bool)
		for v := 0; v < 1+rng.Intn(4); v++ {
			visitSet[randDate(rng)] = true
		}
		visits := make([]string, 0, len(visitSet))
		for d := range visitSet {
			visits = append(visits, d)
		}
		sort.Strings(visits)

		drugForNote := "current therapy"
		if len(meds) > 0 {
			drugForNote = meds[rng.Intn(len(meds))]
		}
		extra := extraNotes[rng.Intn(len(extraNotes))]
		tmpl := noteTemplates[rng.Intn(len(noteTemplates))]
		var notes string
		if tmpl == noteTemplates[0] {
			notes = fmt.Sprintf(tmpl, drugForNote, extra)
		} else {
			notes = fmt.Sprintf(tmpl, extra)
		}

		patients = append(patients, domain.PatientRecord{
			ID:          fmt.Sprintf("P%04d", i),
			Name:        name,
			Age:         18 + rng.Intn(73),
			Gender:      []string{"F", "M"}[rng.Intn(2)],
			Conditions:  conds,
			Medications: meds,
			Notes:       notes,
			Address:     fmt.Sprintf("%d %s, %s", 100+rng.Intn(900), streets[rng.Intn(len(streets))], cities[rng.Intn(len(cities))]),
			VisitDates:  visits,
		})
	}
	return patients
}

func main() {
	count := flag.Int("count", 250, "number of synthetic patients to generate")
	seed := flag.Int64("seed", 42, "PRNG seed, fixed for reproducible fixtures")
	outPath := flag.String("out", "data/mock_patient_data.json", "output JSON file, empty to skip")
	toDB := flag.Bool("db", false, "also upsert the generated records into Postgres")
	flag.Parse()

	log, err := logger.NewDevelopmentLogger()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	rng := rand.New(rand.NewSource(*seed))
	patients := generate(rng, *count)

	if *outPath != "" {
		if err := os.MkdirAll(filepath.Dir(*outPath), 0o755); err != nil {
			log.Fatal("failed to create output directory", zap.Error(err))
		}
		data, err := json.MarshalIndent(patients, "", "  ")
		if err != nil {
			log.Fatal("failed to encode patients", zap.Error(err))
		}
		if err := os.WriteFile(*outPath, data, 0o644); err != nil {
			log.Fatal("failed to write output file", zap.Error(err))
		}
		log.Info("wrote patient fixture", zap.Int("count", len(patients)), zap.String("path", *outPath))
	}

	if *toDB {
		cfg := config.Load()
		db, err := database.NewPostgresDB(&cfg.Database)
		if err != nil {
			log.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		if err := repository.EnsureSchema(ctx, db); err != nil {
			log.Fatal("failed to ensure schema", zap.Error(err))
		}
		repo := repository.NewPostgresPatientsRepo(db)
		n, err := repo.UpsertPatients(ctx, patients)
		if err != nil {
			log.Fatal("failed to upsert patients", zap.Error(err))
		}
		log.Info("seeded database", zap.Int("upserted", n))
	}
}
