package npy

import "golang.org/x/sys/cpu"

// ByteOrder is the byte-order character of a descriptor token.
type ByteOrder byte

const (
	OrderNative        ByteOrder = '='
	OrderLittle        ByteOrder = '<'
	OrderBig           ByteOrder = '>'
	OrderNotApplicable ByteOrder = '|'
)

// NativeOrder returns the byte order of the running machine. It is always
// OrderLittle or OrderBig.
func NativeOrder() ByteOrder {
	if cpu.IsBigEndian {
		return OrderBig
	}
	return OrderLittle
}

func (o ByteOrder) valid() bool {
	switch o {
	case OrderNative, OrderLittle, OrderBig, OrderNotApplicable:
		return true
	}
	return false
}

// concrete resolves native and not-applicable to the machine's order.
func (o ByteOrder) concrete() ByteOrder {
	switch o {
	case OrderLittle, OrderBig:
		return o
	default:
		return NativeOrder()
	}
}

func (o ByteOrder) String() string {
	switch o {
	case OrderNative:
		return "native"
	case OrderLittle:
		return "little"
	case OrderBig:
		return "big"
	case OrderNotApplicable:
		return "n/a"
	default:
		return "ByteOrder(" + string(rune(o)) + ")"
	}
}

// ParseByteOrder maps a configuration word (native, little, big) to a
// ByteOrder.
func ParseByteOrder(s string) (ByteOrder, bool) {
	switch s {
	case "", "native", "=":
		return OrderNative, true
	case "little", "le", "<":
		return OrderLittle, true
	case "big", "be", ">":
		return OrderBig, true
	}
	return 0, false
}
