package orderstore

import (
	"fmt"
	"reflect"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

var decimalType = reflect.TypeOf(decimal.Decimal{})

// Registry builds the BSON registry EnrichedOrder/EnrichedProduct need to
// round-trip decimal.Decimal money fields correctly. decimal.Decimal has
// only unexported fields and implements no bson.Marshaler, so the driver's
// default struct codec would otherwise encode it as an empty subdocument
// and decode it back as a zero value. Pass this to options.Client().SetRegistry
// when connecting.
func Registry() *bsoncodec.Registry {
	rb := bson.NewRegistryBuilder()
	rb.RegisterTypeEncoder(decimalType, bsoncodec.ValueEncoderFunc(encodeDecimal))
	rb.RegisterTypeDecoder(decimalType, bsoncodec.ValueDecoderFunc(decodeDecimal))
	return rb.Build()
}

func encodeDecimal(_ bsoncodec.EncodeContext, vw bsonrw.ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != decimalType {
		return bsoncodec.ValueEncoderError{Name: "decimalEncodeValue", Types: []reflect.Type{decimalType}, Received: val}
	}
	d := val.Interface().(decimal.Decimal)
	return vw.WriteString(d.String())
}

func decodeDecimal(_ bsoncodec.DecodeContext, vr bsonrw.ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != decimalType {
		return bsoncodec.ValueDecoderError{Name: "decimalDecodeValue", Types: []reflect.Type{decimalType}, Received: val}
	}

	var str string
	switch vr.Type() {
	case bsontype.String:
		s, err := vr.ReadString()
		if err != nil {
			return err
		}
		str = s
	case bsontype.Null:
		return vr.ReadNull()
	case bsontype.Undefined:
		return vr.ReadUndefined()
	default:
		return fmt.Errorf("cannot decode %v into a decimal.Decimal", vr.Type())
	}

	d, err := decimal.NewFromString(str)
	if err != nil {
		return fmt.Errorf("decode decimal.Decimal: %w", err)
	}
	val.Set(reflect.ValueOf(d))
	return nil
}
