package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"notification-workers/internal/common/errors"
	"notification-workers/internal/models"

	"github.com/shopspring/decimal"
)

type documentTable struct {
	table       string
	idColumn    string
	numberCol   string
	dateCol     string
	deadlineCol string
	penaltyCol  string
	itemTable   string
	notFound    string
}

var documentTables = map[models.DocumentKind]documentTable{
	models.KindInvoice: {
		table:       "invoice",
		idColumn:    "invoice_id",
		numberCol:   "invoice_number",
		dateCol:     "invoice_date",
		deadlineCol: "due_date",
		penaltyCol:  "d.late_payment_penalty",
		itemTable:   "invoice_item",
		notFound:    "Facture non trouvée",
	},
	models.KindQuote: {
		table:       "quote",
		idColumn:    "quote_id",
		numberCol:   "quote_number",
		dateCol:     "quote_date",
		deadlineCol: "validity_date",
		penaltyCol:  "NULL",
		itemTable:   "quote_item",
		notFound:    "Devis non trouvé",
	},
}

// DocumentStore reads invoices and quotes with their company, customer and
// line items.
type DocumentStore struct {
	db *sql.DB
}

func NewDocumentStore(db *sql.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// GetDocument loads a document regardless of company.
func (s *DocumentStore) GetDocument(ctx context.Context, kind models.DocumentKind, id string) (*models.Document, error) {
	return s.FindDocument(ctx, kind, id, "")
}

// FindDocument loads a document scoped to companyID. A document owned by
// another company is reported as not found.
func (s *DocumentStore) FindDocument(ctx context.Context, kind models.DocumentKind, id, companyID string) (*models.Document, error) {
	t, ok := documentTables[kind]
	if !ok {
		return nil, errors.NewValidationError("Type de document invalide",
			errors.FieldError{Field: "kind", Message: fmt.Sprintf("unknown document kind %q", kind)})
	}

	query := fmt.Sprintf(`
		SELECT d.%[2]s, d.%[3]s, d.status, d.company_id, d.%[4]s, d.%[5]s,
		       d.amount_excluding_tax, d.tax, d.amount_including_tax, d.conditions, d.notes, %[6]s,
		       c.company_id, c.name, c.address, c.postal_code, c.city, c.country, c.email, c.phone, c.siret, c.tva_intra,
		       cu.customer_id, cu.email, cu.phone, cu.address, cu.postal_code, cu.city,
		       b.name, b.tva_applicable, b.tva_intra, i.first_name, i.last_name
		FROM %[1]s d
		JOIN company c ON c.company_id = d.company_id
		JOIN customer cu ON cu.customer_id = d.customer_id
		LEFT JOIN business b ON b.customer_id = cu.customer_id
		LEFT JOIN individual i ON i.customer_id = cu.customer_id
		WHERE d.%[2]s = $1`,
		t.table, t.idColumn, t.numberCol, t.dateCol, t.deadlineCol, t.penaltyCol)
	args := []interface{}{id}
	if companyID != "" {
		query += ` AND d.company_id = $2`
		args = append(args, companyID)
	}

	doc := models.Document{Kind: kind}
	var (
		deadline                                  sql.NullTime
		conditions, notes, penalty                sql.NullString
		country, companyEmail, companyPhone       sql.NullString
		siret, companyTVA                         sql.NullString
		customerEmail, customerPhone              sql.NullString
		customerAddress, customerPostal, custCity sql.NullString
		businessName, businessTVA                 sql.NullString
		firstName, lastName                       sql.NullString
		tvaApplicable                             sql.NullBool
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&doc.ID, &doc.Number, &doc.Status, &doc.CompanyID, &doc.IssueDate, &deadline,
		&doc.AmountExcludingTax, &doc.Tax, &doc.AmountIncludingTax, &conditions, &notes, &penalty,
		&doc.Company.ID, &doc.Company.Name, &doc.Company.Address, &doc.Company.PostalCode, &doc.Company.City,
		&country, &companyEmail, &companyPhone, &siret, &companyTVA,
		&doc.Customer.ID, &customerEmail, &customerPhone, &customerAddress, &customerPostal, &custCity,
		&businessName, &tvaApplicable, &businessTVA, &firstName, &lastName,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError(t.notFound, id)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get "+t.table, err)
	}

	if kind == models.KindInvoice {
		doc.DueDate = nullTime(deadline)
	} else {
		doc.ValidityDate = nullTime(deadline)
	}
	doc.Conditions = nullString(conditions)
	doc.Notes = nullString(notes)
	doc.LatePaymentPenalty = nullString(penalty)

	doc.Company.Country = nullString(country)
	doc.Company.Email = nullString(companyEmail)
	doc.Company.Phone = nullString(companyPhone)
	doc.Company.SIRET = nullString(siret)
	doc.Company.TVAIntra = nullString(companyTVA)

	doc.Customer.Email = nullString(customerEmail)
	doc.Customer.Phone = nullString(customerPhone)
	doc.Customer.Address = nullString(customerAddress)
	doc.Customer.PostalCode = nullString(customerPostal)
	doc.Customer.City = nullString(custCity)
	if businessName.Valid {
		doc.Customer.Type = models.CustomerBusiness
		doc.Customer.BusinessName = nullString(businessName)
		doc.Customer.TVAApplicable = tvaApplicable.Valid && tvaApplicable.Bool
		doc.Customer.TVAIntra = nullString(businessTVA)
	} else {
		doc.Customer.Type = models.CustomerIndividual
		doc.Customer.FirstName = nullString(firstName)
		doc.Customer.LastName = nullString(lastName)
	}

	items, err := s.items(ctx, t, doc.ID)
	if err != nil {
		return nil, err
	}
	doc.Items = items
	return &doc, nil
}

func (s *DocumentStore) items(ctx context.Context, t documentTable, documentID string) ([]models.LineItem, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT it.item_id, it.quantity, it.unit_price_excluding_tax, it.vat_rate, it.name, it.description, it.unit,
		       p.product_id, p.name, p.description, p.unit
		FROM %s it
		LEFT JOIN product p ON p.product_id = it.product_id
		WHERE it.%s = $1
		ORDER BY it.created_at ASC`, t.itemTable, t.idColumn), documentID)
	if err != nil {
		return nil, errors.NewDatabaseError("list "+t.itemTable, err)
	}
	defer rows.Close()

	var items []models.LineItem
	for rows.Next() {
		var (
			item                            models.LineItem
			quantity, unitPrice             decimal.Decimal
			vatRate                         string
			name, description, unit         sql.NullString
			productID, productName          sql.NullString
			productDescription, productUnit sql.NullString
		)
		if err := rows.Scan(&item.ID, &quantity, &unitPrice, &vatRate, &name, &description, &unit,
			&productID, &productName, &productDescription, &productUnit); err != nil {
			return nil, errors.NewDatabaseError("list "+t.itemTable, err)
		}

		item.Quantity = quantity
		item.UnitPriceExcludingTax = unitPrice
		item.VatRate = models.NormalizeVatRate(vatRate)
		item.Name = nullString(name)
		item.Description = nullString(description)
		item.Unit = nullString(unit)
		if productID.Valid {
			item.Product = &models.Product{
				ID:          productID.String,
				Name:        productName.String,
				Description: nullString(productDescription),
				Unit:        nullString(productUnit),
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("list "+t.itemTable, err)
	}
	return items, nil
}

// AdvanceStatus sets the document status to "to" only while it is still
// "from". It reports whether the row changed.
func (s *DocumentStore) AdvanceStatus(ctx context.Context, kind models.DocumentKind, id, from, to string) (bool, error) {
	t, ok := documentTables[kind]
	if !ok {
		return false, errors.NewInternalError(fmt.Errorf("unknown document kind %q", kind))
	}

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET status = $3, updated_at = NOW() WHERE %s = $1 AND status = $2`, t.table, t.idColumn),
		id, from, to)
	if err != nil {
		return false, errors.NewDatabaseError("update "+t.table+" status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.NewDatabaseError("update "+t.table+" status", err)
	}
	return n == 1, nil
}
