package handler

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/chronos-shop/internal/domain/order"
	"github.com/xenking/chronos-shop/internal/domain/product"
)

// timeLayout matches the millisecond ISO-8601 form browsers produce.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// errBadRequest marks a request body that cannot be parsed.
var errBadRequest = errors.New("invalid request body")

func encodeMessage(e *jx.Encoder, msg string) {
	e.ObjStart()
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()
}

func encodeDecimal(e *jx.Encoder, d decimal.Decimal) {
	e.RawStr(d.String())
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(timeLayout))
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("_id")
	e.Str(o.ID)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("name")
		e.Str(it.Name)
		e.FieldStart("price")
		encodeDecimal(e, it.Price)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("total")
	encodeDecimal(e, o.Total)
	e.FieldStart("user")
	e.ObjStart()
	e.FieldStart("name")
	e.Str(o.Customer.Name)
	e.FieldStart("email")
	e.Str(o.Customer.Email)
	e.FieldStart("address")
	e.Str(o.Customer.Address)
	e.ObjEnd()
	e.FieldStart("paymentMethod")
	e.Str(string(o.PaymentMethod))
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("createdAt")
	encodeTime(e, o.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, o.UpdatedAt)
	e.ObjEnd()
}

func encodeOrderEnvelope(e *jx.Encoder, msg string, o *order.Order) {
	e.ObjStart()
	e.FieldStart("message")
	e.Str(msg)
	e.FieldStart("order")
	encodeOrder(e, o)
	e.ObjEnd()
}

func encodeProduct(e *jx.Encoder, p *product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("price")
	encodeDecimal(e, p.Price)
	e.FieldStart("image")
	e.Str(p.Image)
	e.ObjEnd()
}

// decodeAmount reads a money value given either as a JSON number or a numeric
// string. ok is false for null.
func decodeAmount(d *jx.Decoder) (v decimal.Decimal, ok bool, err error) {
	switch d.Next() {
	case jx.Null:
		return v, false, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return v, false, err
		}
		if s == "" {
			return v, false, nil
		}
		v, err = decimal.NewFromString(s)
		if err != nil {
			return v, false, errors.Wrapf(errBadRequest, "amount %q", s)
		}
		return v, true, nil
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return v, false, err
		}
		v, err = decimal.NewFromString(n.String())
		if err != nil {
			return v, false, errors.Wrapf(errBadRequest, "amount %s", n)
		}
		return v, true, nil
	default:
		return v, false, errors.Wrap(errBadRequest, "amount must be a number")
	}
}

// decodeOptStr reads a string, treating null as absent.
func decodeOptStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func decodeCreateOrder(data []byte) (order.CreateRequest, error) {
	var req order.CreateRequest
	var missingPrice bool

	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "items":
			if d.Next() == jx.Null {
				return d.Null()
			}
			return d.Arr(func(d *jx.Decoder) error {
				item := order.LineItem{Quantity: 1}
				hasPrice := false
				err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "name":
						item.Name, err = decodeOptStr(d)
					case "price":
						item.Price, hasPrice, err = decodeAmount(d)
					case "quantity":
						if d.Next() == jx.Null {
							return d.Null()
						}
						item.Quantity, err = d.Int()
					default:
						err = d.Skip()
					}
					return err
				})
				if err != nil {
					return err
				}
				missingPrice = missingPrice || !hasPrice
				req.Items = append(req.Items, item)
				return nil
			})
		case "total":
			total, _, err := decodeAmount(d)
			req.Total = total
			return err
		case "user":
			if d.Next() == jx.Null {
				return d.Null()
			}
			c := &order.Customer{}
			err := d.Obj(func(d *jx.Decoder, key string) error {
				var err error
				switch key {
				case "name":
					c.Name, err = decodeOptStr(d)
				case "email":
					c.Email, err = decodeOptStr(d)
				case "address":
					c.Address, err = decodeOptStr(d)
				default:
					err = d.Skip()
				}
				return err
			})
			req.Customer = c
			return err
		case "paymentMethod":
			s, err := decodeOptStr(d)
			req.PaymentMethod = order.PaymentMethod(s)
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return req, wrapDecodeErr(err)
	}
	// Absent top-level fields are reported by the service first.
	complete := len(req.Items) > 0 && !req.Total.IsZero() && req.Customer != nil && req.PaymentMethod != ""
	if missingPrice && complete {
		return req, &order.ValidationError{Field: "items", Message: "item price is required"}
	}
	return req, nil
}

func decodeStatus(data []byte) (order.Status, error) {
	var status string
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		var err error
		status, err = decodeOptStr(d)
		return err
	})
	if err != nil {
		return "", wrapDecodeErr(err)
	}
	return order.Status(status), nil
}

// decodePatch accepts only whitelisted fields; any other key is rejected.
func decodePatch(data []byte) (order.Patch, error) {
	var (
		patch    order.Patch
		rejected string
	)
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			s, err := decodeOptStr(d)
			if err == nil && s != "" {
				status := order.Status(s)
				patch.Status = &status
			}
			return err
		case "paymentMethod":
			s, err := decodeOptStr(d)
			if err == nil && s != "" {
				method := order.PaymentMethod(s)
				patch.PaymentMethod = &method
			}
			return err
		default:
			if rejected == "" {
				rejected = key
			}
			return d.Skip()
		}
	})
	if err != nil {
		return patch, wrapDecodeErr(err)
	}
	if rejected != "" {
		return patch, &order.ValidationError{Field: rejected, Message: "field " + rejected + " cannot be updated"}
	}
	return patch, nil
}

func wrapDecodeErr(err error) error {
	if errors.Is(err, errBadRequest) {
		return err
	}
	return errors.Wrap(errBadRequest, err.Error())
}
