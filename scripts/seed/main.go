package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tally-crm/tally/internal/app"
	"github.com/tally-crm/tally/internal/invoices"
	"github.com/tally-crm/tally/internal/platform/db"
	"github.com/tally-crm/tally/internal/projects"
	"github.com/tally-crm/tally/internal/recurring"
	"github.com/tally-crm/tally/internal/reminders"
	"github.com/tally-crm/tally/internal/shared"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := context.Background()
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	logger := app.NewLogger(cfg)
	clock := cfg.Clock()
	links := reminders.NewLinkResolver(pool)

	fmt.Println("→ Seeding clients...")
	clientIDs, err := seedClients(ctx, pool)
	if err != nil {
		log.Fatalf("seed clients: %v", err)
	}

	fmt.Println("→ Seeding projects...")
	projectSvc := projects.NewService(projects.NewRepository(pool), clock, logger)
	if err := seedProjects(ctx, projectSvc, clientIDs); err != nil {
		log.Fatalf("seed projects: %v", err)
	}

	fmt.Println("→ Seeding invoices...")
	invoiceSvc := invoices.NewService(invoices.NewRepository(pool), invoices.ServiceConfig{Policy: cfg.Policy(), Clock: clock, Logger: logger})
	if err := seedInvoices(ctx, invoiceSvc, clock, clientIDs); err != nil {
		log.Fatalf("seed invoices: %v", err)
	}

	fmt.Println("→ Seeding recurring tasks...")
	recurringSvc := recurring.NewService(recurring.NewRepository(pool), recurring.ServiceConfig{Links: links, Clock: clock, Logger: logger})
	if err := seedRecurring(ctx, recurringSvc, clock, clientIDs); err != nil {
		log.Fatalf("seed recurring tasks: %v", err)
	}

	fmt.Println("→ Seeding reminders...")
	reminderSvc := reminders.NewService(reminders.NewRepository(pool), reminders.ServiceConfig{Links: links, Clock: clock, Logger: logger})
	if err := seedReminders(ctx, reminderSvc, clientIDs); err != nil {
		log.Fatalf("seed reminders: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func seedClients(ctx context.Context, pool *pgxpool.Pool) ([]int64, error) {
	clients := []struct {
		name  string
		email string
	}{
		{"Bakery Lindqvist", "hello@lindqvist.example"},
		{"Studio Nordlicht", "office@nordlicht.example"},
		{"Harbour Dental", "admin@harbourdental.example"},
	}
	ids := make([]int64, 0, len(clients))
	for _, c := range clients {
		var id int64
		err := pool.QueryRow(ctx, `
			WITH existing AS (SELECT id FROM clients WHERE name = $1),
			inserted AS (
				INSERT INTO clients (name, email) SELECT $1, $2
				WHERE NOT EXISTS (SELECT 1 FROM existing) RETURNING id
			)
			SELECT id FROM existing UNION ALL SELECT id FROM inserted`, c.name, c.email).Scan(&id)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func seedProjects(ctx context.Context, svc *projects.Service, clients []int64) error {
	web, err := svc.Create(ctx, projects.CreateInput{ClientID: clients[0], Title: "Online shop", OfferTotal: decimal.NewFromInt(6400)})
	if err != nil {
		return err
	}
	for _, step := range []func(context.Context, int64) (*projects.Project, error){svc.SendOffer, svc.AcceptOffer, svc.Start} {
		if _, err := step(ctx, web.ID); err != nil {
			return err
		}
	}
	logo, err := svc.Create(ctx, projects.CreateInput{ClientID: clients[1], Title: "Brand refresh", OfferTotal: decimal.NewFromInt(1800)})
	if err != nil {
		return err
	}
	_, err = svc.SendOffer(ctx, logo.ID)
	return err
}

func seedInvoices(ctx context.Context, svc *invoices.Service, clock shared.Clock, clients []int64) error {
	today := shared.DateOf(clock.Now())
	issued := today.AddDate(0, 0, -45)
	past, err := svc.Create(ctx, invoices.CreateInput{
		ClientID:  clients[0],
		Subtotal:  decimal.NewFromInt(2000),
		TaxAmount: decimal.NewFromInt(380),
		IssuedAt:  &issued,
		DueAt:     issued.AddDate(0, 0, 30),
	})
	if err != nil {
		return err
	}
	if _, err := svc.MarkSent(ctx, past.ID); err != nil {
		return err
	}
	_, err = svc.Create(ctx, invoices.CreateInput{
		ClientID:  clients[2],
		Subtotal:  decimal.NewFromInt(450),
		TaxAmount: decimal.NewFromFloat(85.5),
		DueAt:     today.AddDate(0, 0, 14),
	})
	return err
}

func seedRecurring(ctx context.Context, svc *recurring.Service, clock shared.Clock, clients []int64) error {
	today := shared.DateOf(clock.Now())
	hosting := decimal.NewFromInt(29)
	inputs := []recurring.CreateInput{
		{Title: "Hosting renewal", ClientID: &clients[0], Frequency: "MONTHLY", NextDueAt: today.AddDate(0, 0, 2), Amount: &hosting},
		{Title: "Quarterly SEO report", ClientID: &clients[1], Frequency: "QUARTERLY", NextDueAt: today},
		{Title: "Weekly backup check", Frequency: "WEEKLY", NextDueAt: today.AddDate(0, 0, 1)},
	}
	for _, in := range inputs {
		if _, err := svc.Create(ctx, in); err != nil {
			return err
		}
	}
	return nil
}

func seedReminders(ctx context.Context, svc *reminders.Service, clients []int64) error {
	_, err := svc.Create(ctx, reminders.CreateInput{
		Title:      "Call about maintenance contract",
		DueAt:      time.Now().Add(2 * time.Hour),
		Priority:   reminders.PriorityHigh,
		Recurrence: "MONTHLY",
		Link:       &reminders.Link{Kind: reminders.LinkClient, ID: clients[2]},
	})
	return err
}
