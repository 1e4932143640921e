package mongostore

import (
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/flicky/storefront-api/internal/model"
)

type userDoc struct {
	ID          string    `bson:"_id"`
	Name        string    `bson:"name"`
	Email       string    `bson:"email"`
	Password    string    `bson:"password"`
	Wishlist    []string  `bson:"wishlist"`
	CompareList []string  `bson:"compareList"`
	CreatedAt   time.Time `bson:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

func newUserDoc(u *model.User) userDoc {
	return userDoc{
		ID: u.ID.String(), Name: u.Name, Email: u.Email, Password: u.Password,
		Wishlist: u.Wishlist.Strings(), CompareList: u.CompareList.Strings(),
		CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt,
	}
}

func (d userDoc) model() *model.User {
	return &model.User{
		ID: uuid.MustParse(d.ID), Name: d.Name, Email: d.Email, Password: d.Password,
		Wishlist: model.ParseProductSet(d.Wishlist), CompareList: model.ParseProductSet(d.CompareList),
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

type productDoc struct {
	ID          string               `bson:"_id"`
	Name        string               `bson:"name"`
	Description string               `bson:"description"`
	Price       primitive.Decimal128 `bson:"price"`
	Quantity    int                  `bson:"quantity"`
	Category    string               `bson:"category"`
	ImageURL    string               `bson:"imageUrl"`
	Sold        int                  `bson:"sold"`
	CreatedAt   time.Time            `bson:"createdAt"`
	UpdatedAt   time.Time            `bson:"updatedAt"`
}

func newProductDoc(p *model.Product) productDoc {
	return productDoc{
		ID: p.ID.String(), Name: p.Name, Description: p.Description, Price: toDecimal128(p.Price),
		Quantity: p.Quantity, Category: p.Category, ImageURL: p.ImageURL, Sold: p.Sold,
		CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

func (d productDoc) model() model.Product {
	return model.Product{
		ID: uuid.MustParse(d.ID), Name: d.Name, Description: d.Description, Price: fromDecimal128(d.Price),
		Quantity: d.Quantity, Category: d.Category, ImageURL: d.ImageURL, Sold: d.Sold,
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

type cartItemDoc struct {
	Product  string               `bson:"product"`
	Quantity int                  `bson:"quantity"`
	Price    primitive.Decimal128 `bson:"price"`
}

type cartDoc struct {
	ID         string               `bson:"_id"`
	User       string               `bson:"user"`
	Items      []cartItemDoc        `bson:"items"`
	TotalPrice primitive.Decimal128 `bson:"totalPrice"`
	Version    int                  `bson:"version"`
	CreatedAt  time.Time            `bson:"createdAt"`
	UpdatedAt  time.Time            `bson:"updatedAt"`
}

func cartItemDocs(items []model.CartItem) []cartItemDoc {
	out := make([]cartItemDoc, 0, len(items))
	for _, it := range items {
		out = append(out, cartItemDoc{Product: it.ProductID.String(), Quantity: it.Quantity, Price: toDecimal128(it.Price)})
	}
	return out
}

func (d cartDoc) model() *model.Cart {
	c := &model.Cart{
		ID: uuid.MustParse(d.ID), UserID: uuid.MustParse(d.User), Items: make([]model.CartItem, 0, len(d.Items)),
		TotalPrice: fromDecimal128(d.TotalPrice), Version: d.Version, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
	for _, it := range d.Items {
		c.Items = append(c.Items, model.CartItem{
			ProductID: uuid.MustParse(it.Product), Quantity: it.Quantity, Price: fromDecimal128(it.Price),
		})
	}
	return c
}

type orderItemDoc struct {
	Product  string               `bson:"product"`
	Name     string               `bson:"name"`
	Quantity int                  `bson:"quantity"`
	Price    primitive.Decimal128 `bson:"price"`
	ImageURL string               `bson:"imageUrl"`
}

type addressDoc struct {
	Address    string `bson:"address"`
	City       string `bson:"city"`
	PostalCode string `bson:"postalCode"`
	Country    string `bson:"country"`
}

type paymentResultDoc struct {
	ID           string `bson:"id"`
	Status       string `bson:"status"`
	UpdateTime   string `bson:"updateTime"`
	EmailAddress string `bson:"emailAddress"`
}

type orderDoc struct {
	ID              string               `bson:"_id"`
	User            string               `bson:"user"`
	Items           []orderItemDoc       `bson:"items"`
	ShippingAddress addressDoc           `bson:"shippingAddress"`
	PaymentMethod   string               `bson:"paymentMethod"`
	Subtotal        primitive.Decimal128 `bson:"subtotal"`
	Tax             primitive.Decimal128 `bson:"tax"`
	Shipping        primitive.Decimal128 `bson:"shipping"`
	Total           primitive.Decimal128 `bson:"total"`
	IsPaid          bool                 `bson:"isPaid"`
	PaidAt          *time.Time           `bson:"paidAt,omitempty"`
	PaymentResult   *paymentResultDoc    `bson:"paymentResult,omitempty"`
	CreatedAt       time.Time            `bson:"createdAt"`
	UpdatedAt       time.Time            `bson:"updatedAt"`
}

func newOrderDoc(o *model.Order) orderDoc {
	d := orderDoc{
		ID: o.ID.String(), User: o.UserID.String(), Items: make([]orderItemDoc, 0, len(o.Items)),
		ShippingAddress: addressDoc(o.ShippingAddress), PaymentMethod: o.PaymentMethod,
		Subtotal: toDecimal128(o.Subtotal), Tax: toDecimal128(o.Tax),
		Shipping: toDecimal128(o.Shipping), Total: toDecimal128(o.Total),
		IsPaid: o.IsPaid, PaidAt: o.PaidAt,
		CreatedAt: o.CreatedAt, UpdatedAt: o.UpdatedAt,
	}
	if o.PaymentResult != nil {
		pr := paymentResultDoc(*o.PaymentResult)
		d.PaymentResult = &pr
	}
	for _, it := range o.Items {
		d.Items = append(d.Items, orderItemDoc{
			Product: it.ProductID.String(), Name: it.Name, Quantity: it.Quantity,
			Price: toDecimal128(it.Price), ImageURL: it.ImageURL,
		})
	}
	return d
}

func (d orderDoc) model() model.Order {
	o := model.Order{
		ID: uuid.MustParse(d.ID), UserID: uuid.MustParse(d.User), Items: make([]model.OrderItem, 0, len(d.Items)),
		ShippingAddress: model.ShippingAddress(d.ShippingAddress), PaymentMethod: d.PaymentMethod,
		Subtotal: fromDecimal128(d.Subtotal), Tax: fromDecimal128(d.Tax),
		Shipping: fromDecimal128(d.Shipping), Total: fromDecimal128(d.Total),
		IsPaid: d.IsPaid, PaidAt: d.PaidAt,
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
	if d.PaymentResult != nil {
		pr := model.PaymentResult(*d.PaymentResult)
		o.PaymentResult = &pr
	}
	for _, it := range d.Items {
		o.Items = append(o.Items, model.OrderItem{
			ProductID: uuid.MustParse(it.Product), Name: it.Name, Quantity: it.Quantity,
			Price: fromDecimal128(it.Price), ImageURL: it.ImageURL,
		})
	}
	return o
}
